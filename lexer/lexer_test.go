package lexer

import (
	"testing"

	"github.com/dr8co/gel/token"
)

// TestNextToken exercises a cross-section of the lexer's token kinds, mirroring
// the token-by-token style used across the gel test suite.
func TestNextToken(t *testing.T) {
	input := `(define x 5)
(define y 2.5)
(+ x y)
(< x y)
(<= x y)
; a comment
(set! x "hello\nworld")
#t #f
(defn add (a b) (+ a b))
[1 2 3]
{1 2}
'(1 2)
...`

	tests := []struct {
		expectedKind    token.Kind
		expectedLiteral string
	}{
		{token.Lparen, "("},
		{token.Define, "define"},
		{token.Ident, "x"},
		{token.LiteralLong, "5"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Define, "define"},
		{token.Ident, "y"},
		{token.LiteralDouble, "2.5"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Plus, "+"},
		{token.Ident, "x"},
		{token.Ident, "y"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Lt, "<"},
		{token.Ident, "x"},
		{token.Ident, "y"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Lte, "<="},
		{token.Ident, "x"},
		{token.Ident, "y"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Set, "set!"},
		{token.Ident, "x"},
		{token.LiteralString, "hello\nworld"},
		{token.Rparen, ")"},
		{token.True, "#t"},
		{token.False, "#f"},
		{token.Lparen, "("},
		{token.Defn, "defn"},
		{token.Ident, "add"},
		{token.Lparen, "("},
		{token.Ident, "a"},
		{token.Ident, "b"},
		{token.Rparen, ")"},
		{token.Lparen, "("},
		{token.Plus, "+"},
		{token.Ident, "a"},
		{token.Ident, "b"},
		{token.Rparen, ")"},
		{token.Rparen, ")"},
		{token.Lbracket, "["},
		{token.LiteralLong, "1"},
		{token.LiteralLong, "2"},
		{token.LiteralLong, "3"},
		{token.Rbracket, "]"},
		{token.Lbrace, "{"},
		{token.LiteralLong, "1"},
		{token.LiteralLong, "2"},
		{token.Rbrace, "}"},
		{token.Quote, "'"},
		{token.Lparen, "("},
		{token.LiteralLong, "1"},
		{token.LiteralLong, "2"},
		{token.Rparen, ")"},
		{token.Ellipsis, "..."},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.Next()
		if tok.Kind != tt.expectedKind {
			t.Fatalf("tests[%d] - wrong kind. expected=%q, got=%q (literal %q)",
				i, tt.expectedKind, tok.Kind, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := New("(+ 1 2)")

	first := l.Peek()
	second := l.Peek()
	if first != second {
		t.Fatalf("Peek should be idempotent, got %v then %v", first, second)
	}
	if l.Next() != first {
		t.Fatalf("Next should return the peeked token")
	}
	if l.Next().Kind != token.Plus {
		t.Fatalf("expected Plus after peeked Lparen")
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"abc`)
	tok := l.Next()
	if tok.Kind != token.Illegal {
		t.Fatalf("expected Illegal for unterminated string, got %q", tok.Kind)
	}
}

func TestIllegalCharacter(t *testing.T) {
	l := New("@")
	tok := l.Next()
	if tok.Kind != token.Illegal || tok.Literal != "@" {
		t.Fatalf("expected Illegal(@), got %v", tok)
	}
}
