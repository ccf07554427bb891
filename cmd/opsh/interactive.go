package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/opcore/runtime"
)

const (
	historyLimit = 500
	pollInterval = 200 * time.Millisecond
	sidebarWidth = 36
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Width(sidebarWidth)
)

type line struct {
	text  string
	style lipgloss.Style
}

type interactiveModel struct {
	sh      *shell
	iso     *runtime.Isolate
	input   textinput.Model
	history []line
	height  int
	busy    bool
}

type execMsg struct {
	err   error
	lines []string
}

type pollMsg struct {
	err   error
	lines []string
}

func newInteractiveModel(iso *runtime.Isolate) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `sync queryPermission {"name":"read","path":"/tmp"}`
	ti.Prompt = "> "
	ti.Width = 72
	ti.Focus()
	return &interactiveModel{
		sh:     newShell(iso),
		iso:    iso,
		input:  ti,
		height: 24,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.schedulePoll())
}

func (m *interactiveModel) schedulePoll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		lines, err := m.sh.poll()
		return pollMsg{lines: lines, err: err}
	})
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.busy {
				return m, nil
			}
			text := m.input.Value()
			m.input.Reset()
			return m, m.run(text)
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(msg.Width-sidebarWidth-8, 20)

	case execMsg:
		m.busy = false
		m.appendLines(msg.lines, resultStyle)
		if msg.err != nil {
			m.appendLines([]string{"error: " + msg.err.Error()}, errorStyle)
		}
		return m, nil

	case pollMsg:
		m.appendLines(msg.lines, resultStyle)
		if msg.err != nil {
			m.appendLines([]string{"error: " + msg.err.Error()}, errorStyle)
		}
		return m, m.schedulePoll()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) run(text string) tea.Cmd {
	cmd, ok, err := parseLine(text)
	if err != nil {
		m.appendLines([]string{text}, inputStyle)
		m.appendLines([]string{err.Error()}, errorStyle)
		return nil
	}
	if !ok {
		return nil
	}
	m.appendLines([]string{text}, inputStyle)
	m.busy = true
	return func() tea.Msg {
		lines, err := m.sh.exec(context.Background(), cmd)
		return execMsg{lines: lines, err: err}
	}
}

func (m *interactiveModel) appendLines(lines []string, style lipgloss.Style) {
	for _, l := range lines {
		m.history = append(m.history, line{text: l, style: style})
	}
	if over := len(m.history) - historyLimit; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("opsh"))
	b.WriteString(" isolate ")
	b.WriteString(m.iso.ID().String())
	b.WriteString("\n\n")

	visible := max(m.height-6, 1)
	start := max(len(m.history)-visible, 0)
	var log strings.Builder
	for _, l := range m.history[start:] {
		log.WriteString(l.style.Render(l.text))
		log.WriteString("\n")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, log.String(), "  ", m.sidebar()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("sync|async <op> [json] [| data] • drain • esc quit"))
	return b.String()
}

func (m *interactiveModel) sidebar() string {
	var b strings.Builder
	b.WriteString("Resources\n")
	for _, l := range m.sh.resources() {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\nMetrics\n")
	snap := m.iso.Metrics().Snapshot()
	fmt.Fprintf(&b, "dispatched %d\ncompleted  %d\npending    %d\n",
		snap.OpsDispatched, snap.OpsCompleted, snap.Pending())
	fmt.Fprintf(&b, "ref/unref  %d/%d\n", m.iso.Bridge().PendingRef(), m.iso.Bridge().PendingUnref())
	return sidebarStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func runInteractive(iso *runtime.Isolate) error {
	p := tea.NewProgram(newInteractiveModel(iso), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
