package resolver

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nimp/internal/knowledge"
	"nimp/internal/logging"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	typeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// TUI asks the operator through a small bubbletea form.
type TUI struct {
	in  io.Reader
	out io.Writer
}

// NewTUI returns a TUI resolver bound to the given terminal streams.
func NewTUI(in io.Reader, out io.Writer) *TUI {
	return &TUI{in: in, out: out}
}

// Resolve implements synth.Resolver.
func (t *TUI) Resolve(ctx context.Context, typeName string) (knowledge.Classification, error) {
	p := tea.NewProgram(newClassifyModel(typeName),
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return knowledge.Classification{}, ctxErr
		}
		return knowledge.Classification{}, fmt.Errorf("classify %s: %w", typeName, err)
	}
	m, ok := final.(classifyModel)
	if !ok || !m.done {
		return knowledge.Classification{}, fmt.Errorf("%w: %s (skipped)", ErrUnresolved, typeName)
	}
	logging.Resolver("operator classified %s as %s", typeName, m.result)
	return m.result, nil
}

// classifyModel is the bubbletea model behind TUI.
type classifyModel struct {
	typeName string
	input    textinput.Model
	result   knowledge.Classification
	done     bool
	invalid  string
}

func newClassifyModel(typeName string) classifyModel {
	ti := textinput.New()
	ti.Placeholder = "!r, !o, redirect: <type> or a literal"
	ti.CharLimit = 200
	ti.Width = 60
	ti.Focus()
	return classifyModel{typeName: typeName, input: ti}
}

// Init initializes the model.
func (m classifyModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m classifyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			c, ok := parseAnswer(m.input.Value())
			if !ok {
				m.invalid = "an answer is required"
				return m, nil
			}
			m.result = c
			m.done = true
			return m, tea.Quit
		}
		m.invalid = ""
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the form.
func (m classifyModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Unknown type") + " " + typeStyle.Render(m.typeName) + "\n\n")
	sb.WriteString(m.input.View() + "\n")
	if m.invalid != "" {
		sb.WriteString(errStyle.Render(m.invalid) + "\n")
	}
	sb.WriteString(hintStyle.Render("!r reference  !o object  enter to confirm  esc to skip") + "\n")
	return sb.String()
}
