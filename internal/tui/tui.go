package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/coordinator"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/ui"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// previewLines is how much of the streamed prose stays on screen.
const previewLines = 8

// RunFunc runs one turn, reporting previews to sink.
type RunFunc func(ctx context.Context, sink func(coordinator.Preview)) (*coordinator.Result, error)

type previewMsg struct{ coordinator.Preview }

type resultMsg struct{ res *coordinator.Result }

type state int

const (
	stateStreaming state = iota
	stateCancelling
	stateSummary
)

// Model shows a turn while it streams and its summary once done.
type Model struct {
	run     RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
	send    func(tea.Msg)
	spinner spinner.Model
	state   state
	preview coordinator.Preview
	result  *coordinator.Result
}

// New creates the model. The turn starts when the program starts.
func New(ctx context.Context, run RunFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
		spinner: s,
	}
}

// SetProgram connects the model to the program that delivers previews.
func (m *Model) SetProgram(p *tea.Program) {
	m.send = p.Send
}

// Result returns the finished turn, or nil while it is running.
func (m *Model) Result() *coordinator.Result {
	return m.result
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runTurn)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.state == stateStreaming {
				m.state = stateCancelling
				m.cancel()
			}
		}
		return m, nil

	case previewMsg:
		if m.state == stateStreaming {
			m.preview = msg.Preview
		}
		return m, nil

	case resultMsg:
		m.state = stateSummary
		m.result = msg.res
		m.cancel()
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state != stateSummary {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
}

func (m *Model) View() string {
	switch m.state {
	case stateStreaming:
		return m.renderPreview(fmt.Sprintf("%s Streaming", m.spinner.View()))
	case stateCancelling:
		return m.renderPreview(fmt.Sprintf("%s Cancelling", m.spinner.View()))
	default:
		return m.renderSummary()
	}
}

func (m *Model) renderPreview(status string) string {
	var b strings.Builder
	if n := len(m.preview.Instructions); n > 0 {
		status += faintStyle.Render(fmt.Sprintf(" (%d edit(s) received)", n))
	}
	b.WriteString(status)
	b.WriteString("\n")
	if msg := tail(m.preview.Message, previewLines); msg != "" {
		b.WriteString("\n")
		b.WriteString(faintStyle.Render(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderSummary() string {
	if m.result == nil {
		return ""
	}
	summary := ui.Summarize(m.result)
	var b strings.Builder

	if summary.Message != "" {
		b.WriteString(headerStyle.Render(summary.Message))
		b.WriteString("\n\n")
	}

	section := func(title string, style lipgloss.Style, files []string) {
		if len(files) == 0 {
			return
		}
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section("Created:", successStyle, summary.Created)
	section("Modified:", successStyle, summary.Modified)
	section("Failed:", errorStyle, summary.Failed)

	if m.result.Commit != nil {
		b.WriteString(successStyle.Render("Committed " + m.result.Commit.ID))
		b.WriteString("\n")
	}
	if m.result.Err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.result.Err.Error()))
		b.WriteString("\n")
	} else if len(summary.Created)+len(summary.Modified) == 0 && summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) runTurn() tea.Msg {
	sink := func(p coordinator.Preview) {
		if m.send != nil {
			m.send(previewMsg{p})
		}
	}
	res, err := m.run(m.ctx, sink)
	if res == nil {
		res = &coordinator.Result{State: coordinator.Done, Err: err}
	}
	return resultMsg{res}
}

func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
