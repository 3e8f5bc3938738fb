package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrAborted is returned when the user closes input (Ctrl+C, Ctrl+D or EOF)
// instead of answering.
var ErrAborted = errors.New("input aborted")

// Prompter reads one answer to a menu question.
type Prompter interface {
	Prompt(ctx context.Context, label string) (string, error)
}

// NewPrompter returns an interactive line editor when in is a terminal and a
// plain line reader otherwise.
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if term.IsTerminal(int(in.Fd())) {
		return &TeaPrompter{In: in, Out: out}
	}
	return NewLinePrompter(in, out)
}

// LinePrompter reads newline-terminated answers from any reader.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// TeaPrompter edits the answer inline with a bubbletea text input.
type TeaPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p *TeaPrompter) Prompt(ctx context.Context, label string) (string, error) {
	prog := tea.NewProgram(newPromptModel(label),
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	)
	final, err := prog.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	m, ok := final.(promptModel)
	if !ok || m.aborted {
		return "", ErrAborted
	}
	return m.input.Value(), nil
}

// promptModel is a single-line question that finishes on Enter.
type promptModel struct {
	input   textinput.Model
	done    bool
	aborted bool
}

func newPromptModel(label string) promptModel {
	ti := textinput.New()
	ti.Prompt = label
	ti.CharLimit = 8
	ti.Width = 8
	ti.PromptStyle = lipgloss.NewStyle().Bold(true)
	ti.Focus()
	return promptModel{input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.aborted {
		// Leave the answered question on screen like a plain prompt would.
		return m.input.Prompt + m.input.Value() + "\n"
	}
	return m.input.View()
}
