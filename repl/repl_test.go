package repl

import "testing"

func TestBalancedAcceptsCompleteForms(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"(+ 1 2)", true},
		{"(defn f (n) (+ n 1))", true},
		{"(+ 1 (* 2 3", false},
		{"(list [1 2] {3 4})", true},
		{")", true},
		{"", true},
		{"(]", true},
		{"(+ 1 [2 3)", true},
	}
	for _, c := range cases {
		if got := balanced(c.input); got != c.want {
			t.Errorf("balanced(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}
