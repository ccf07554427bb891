package permission

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Prompter asks a human whether a capability may be granted.
type Prompter interface {
	// Interactive reports whether prompting is possible right now.
	Interactive() bool
	// Prompt blocks until the user answers. api names the caller, if known.
	Prompt(d Descriptor, api string) bool
}

// NoPrompt never prompts; Prompt states resolve to Denied.
type NoPrompt struct{}

func (NoPrompt) Interactive() bool              { return false }
func (NoPrompt) Prompt(Descriptor, string) bool { return false }

// PromptFunc is an always-interactive prompter backed by a function.
type PromptFunc func(d Descriptor, api string) bool

func (f PromptFunc) Interactive() bool                    { return true }
func (f PromptFunc) Prompt(d Descriptor, api string) bool { return f(d, api) }

var (
	promptTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#D97706")).
				Padding(0, 1)

	promptKindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FBBF24"))

	promptHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// TerminalPrompter asks on a terminal. Prompting is only attempted when both
// the input and the error stream are terminals.
type TerminalPrompter struct {
	in     *os.File
	out    *os.File
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewTerminalPrompter prompts on stderr and reads answers from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return NewTerminalPrompterWith(os.Stdin, os.Stderr)
}

// NewTerminalPrompterWith prompts on out and reads answers from in.
func NewTerminalPrompterWith(in, out *os.File) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *TerminalPrompter) Interactive() bool {
	return term.IsTerminal(int(p.in.Fd())) && term.IsTerminal(int(p.out.Fd()))
}

func (p *TerminalPrompter) Prompt(d Descriptor, api string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, renderPrompt(d, api))
	return readAnswer(p.reader)
}

func renderPrompt(d Descriptor, api string) string {
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("permission"))
	b.WriteString(" script requests ")
	b.WriteString(promptKindStyle.Render(d.Kind.String()))
	b.WriteString(" access")
	if d.Scope != "" {
		b.WriteString(" to ")
		b.WriteString(quote(d.Scope))
	}
	if api != "" && api != d.Scope {
		b.WriteString(" (")
		b.WriteString(api)
		b.WriteString(")")
	}
	b.WriteString(". Grant? ")
	b.WriteString(promptHelpStyle.Render("[y/n]"))
	b.WriteString(" ")
	return b.String()
}

// readAnswer reads lines until it sees a yes or no answer. EOF is a no.
func readAnswer(r *bufio.Reader) bool {
	for {
		line, err := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return false
		}
	}
}
