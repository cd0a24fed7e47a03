package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"studyrun/internal/ui/theme"
)

// PaletteSubmitMsg is emitted when the user confirms a command.
type PaletteSubmitMsg struct{ Input string }

// PaletteCancelMsg is emitted when the user presses esc.
type PaletteCancelMsg struct{}

// Command describes one palette entry.
type Command struct {
	Name string
	Args string
	Help string
}

func (c Command) usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

const maxSuggestions = 5

var paletteStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(theme.Peach).
	Foreground(theme.Text).
	Padding(0, 1)

// Palette is a one-line command prompt with prefix suggestions. Up and down
// move through the suggestions, tab completes the selected one.
type Palette struct {
	input    textinput.Model
	commands []Command
	cursor   int
	visible  bool
	width    int
}

func NewPalette(commands []Command) Palette {
	ti := textinput.New()
	ti.Prompt = ": "
	ti.Placeholder = "command"
	ti.CharLimit = 128
	return Palette{input: ti, commands: commands}
}

func (p Palette) Visible() bool { return p.visible }

func (p *Palette) SetWidth(w int) { p.width = w }

// Open shows the palette with value prefilled and returns the focus command.
func (p *Palette) Open(value string) tea.Cmd {
	p.visible = true
	p.cursor = 0
	p.input.SetValue(value)
	p.input.CursorEnd()
	return p.input.Focus()
}

func (p *Palette) close() {
	p.visible = false
	p.input.Blur()
}

// Suggestions lists the commands whose name matches the first word typed.
func (p Palette) Suggestions() []Command {
	word := strings.ToLower(strings.TrimSpace(p.input.Value()))
	if i := strings.IndexByte(word, ' '); i >= 0 {
		word = word[:i]
	}
	var out []Command
	for _, c := range p.commands {
		if strings.HasPrefix(c.Name, word) {
			out = append(out, c)
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out
}

func (p Palette) Update(msg tea.Msg) (Palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		suggestions := p.Suggestions()
		switch msg.Type {
		case tea.KeyEsc:
			p.close()
			return p, func() tea.Msg { return PaletteCancelMsg{} }
		case tea.KeyEnter:
			val := strings.TrimSpace(p.input.Value())
			p.close()
			return p, func() tea.Msg { return PaletteSubmitMsg{Input: val} }
		case tea.KeyUp:
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil
		case tea.KeyDown:
			if p.cursor < len(suggestions)-1 {
				p.cursor++
			}
			return p, nil
		case tea.KeyTab:
			if p.cursor < len(suggestions) {
				p.input.SetValue(suggestions[p.cursor].Name + " ")
				p.input.CursorEnd()
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	if n := len(p.Suggestions()); p.cursor >= n {
		p.cursor = max(n-1, 0)
	}
	return p, cmd
}

func (p Palette) View() string {
	if !p.visible {
		return ""
	}
	lines := []string{p.input.View()}
	for i, c := range p.Suggestions() {
		row := "  " + c.usage()
		if c.Help != "" {
			row += "  " + theme.Muted.Render(c.Help)
		}
		if i == p.cursor {
			row = theme.Hot.Render("›") + row[1:]
		}
		lines = append(lines, row)
	}
	w := p.width
	if w < 20 {
		w = 64
	}
	return paletteStyle.Width(w - 2).Render(strings.Join(lines, "\n"))
}
