// Package repl implements gel's interactive Read-Eval-Print Loop.
//
// Trimmed from dr8co/kong/repl's full syntax-highlighting, async-
// evaluation TUI model (out of scope per spec.md §1 — "thin adapters
// whose rewriting offers no design insight") down to a single-line
// input loop: one bubbletea model, no spinner or textinput sub-widget,
// evaluation run synchronously against a *runtime.Runtime since gel's
// Eval returns fast enough that an async dance buys nothing here. The
// lipgloss prompt/result/error styling survives unchanged.
package repl

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/runtime"
)

const (
	// Prompt is the default prompt for the REPL.
	Prompt = "gel> "
	// ContPrompt continues a form left unbalanced at end of line.
	ContPrompt = " ..> "
)

// Options configures the REPL's output.
type Options struct {
	NoColor bool
}

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	historyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

type historyEntry struct {
	input   string
	output  string
	isError bool
}

type model struct {
	rt      *runtime.Runtime
	opts    Options
	input   string
	buffer  string
	history []historyEntry
	done    bool
}

// Start runs the REPL against rt until the user exits (Ctrl+C/D/Esc).
func Start(rt *runtime.Runtime, opts Options) {
	p := tea.NewProgram(model{rt: rt, opts: opts})
	if _, err := p.Run(); err != nil {
		fmt.Println("repl:", err)
	}
}

func (m model) style(s lipgloss.Style, text string) string {
	if m.opts.NoColor {
		return text
	}
	return s.Render(text)
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
		m.done = true
		return m, tea.Quit
	case tea.KeyEnter:
		return m.submitLine()
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	case tea.KeySpace:
		m.input += " "
		return m, nil
	default:
		m.input += keyMsg.String()
		return m, nil
	}
}

// submitLine evaluates the accumulated buffer once parentheses
// balance, otherwise carries the line into a continuation buffer —
// the same unbalanced-bracket heuristic the teacher's REPL uses to
// decide when a multi-line form is complete.
func (m model) submitLine() (tea.Model, tea.Cmd) {
	line := m.input
	m.input = ""

	candidate := line
	if m.buffer != "" {
		candidate = m.buffer + "\n" + line
	}
	if !balanced(candidate) {
		m.buffer = candidate
		return m, nil
	}
	m.buffer = ""

	result, err := m.rt.Eval(candidate)
	entry := historyEntry{input: candidate}
	switch {
	case err != nil:
		entry.isError = true
		entry.output = err.Error()
	default:
		if errObj, ok := result.(*object.Error); ok {
			entry.isError = true
			entry.output = errObj.Inspect()
		} else {
			entry.output = result.Inspect()
		}
	}
	m.history = append(m.history, entry)
	return m, nil
}

// balanced reports whether every paren/bracket/brace in s is closed —
// the REPL's cue that a form is ready to evaluate rather than still
// being typed.
func balanced(s string) bool {
	var stack []rune
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 {
				return true // an excess close paren is the user's problem, not ours to hold
			}
			top := stack[len(stack)-1]
			if (r == ')' && top != '(') || (r == ']' && top != '[') || (r == '}' && top != '{') {
				return true // mismatched bracket kind: same story, hand it to the parser
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(m.style(historyStyle, "gel repl — Ctrl+C/D or Esc to exit"))
	s.WriteString("\n\n")

	for _, entry := range m.history {
		for i, line := range strings.Split(entry.input, "\n") {
			if i == 0 {
				s.WriteString(m.style(promptStyle, Prompt))
			} else {
				s.WriteString(m.style(promptStyle, ContPrompt))
			}
			s.WriteString(line)
			s.WriteString("\n")
		}
		if entry.isError {
			s.WriteString(m.style(errorStyle, entry.output))
		} else {
			s.WriteString(m.style(resultStyle, entry.output))
		}
		s.WriteString("\n\n")
	}

	if m.buffer != "" {
		s.WriteString(m.style(promptStyle, ContPrompt))
	} else {
		s.WriteString(m.style(promptStyle, Prompt))
	}
	s.WriteString(m.input)
	if m.done {
		s.WriteString("\n")
	}
	return s.String()
}
