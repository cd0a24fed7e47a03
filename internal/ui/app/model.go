package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	activitydomain "studyrun/internal/modules/activity/domain"
	sessiondto "studyrun/internal/modules/session/dto"
	"studyrun/internal/ui/components"
	"studyrun/internal/ui/theme"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type sessionPort interface {
	Status(ctx context.Context, code string) (sessiondto.SessionOutput, error)
	Complete(ctx context.Context, code, task string) (sessiondto.SessionOutput, error)
	Skip(ctx context.Context, code, task, reason string) (sessiondto.SessionOutput, error)
	Pause(ctx context.Context, code string) (sessiondto.SessionOutput, error)
	Unpause(ctx context.Context, code string) (sessiondto.SessionOutput, error)
	Recording(ctx context.Context, code, status string) (sessiondto.SessionOutput, error)
}

// signalPort receives the terminal's input, focus and blur observations.
type signalPort interface {
	Emit(kind activitydomain.SignalKind)
}

const refreshInterval = time.Second

var paletteCommands = []components.Command{
	{Name: "complete", Help: "finish the current task"},
	{Name: "skip", Args: "[reason]", Help: "skip the current task"},
	{Name: "pause", Help: "pause the session"},
	{Name: "resume", Help: "lift a manual pause"},
	{Name: "recording", Args: "<idle|recording|uploaded|failed>", Help: "set recording status"},
}

// ─── async messages ───────────────────────────────────────────────────────────

type tickMsg time.Time

type statusMsg struct {
	out sessiondto.SessionOutput
	err error
}

type actionMsg struct {
	verb string
	out  sessiondto.SessionOutput
	err  error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Complete  key.Binding
	Skip      key.Binding
	Pause     key.Binding
	Recording key.Binding
	Palette   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Complete:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "complete task")),
		Skip:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip task")),
		Pause:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Recording: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "toggle recording")),
		Palette:   key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "command")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Complete, k.Skip, k.Pause, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Complete, k.Skip, k.Pause, k.Recording},
		{k.Palette, k.Help, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model runs one session in the terminal. Timer state lives in the session
// use case; the model only renders the latest status and forwards signals.
type Model struct {
	code    string
	session sessionPort
	signals signalPort

	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette
	out      sessiondto.SessionOutput
	loaded   bool
	status   string
	width    int
	height   int
}

func NewModel(code string, session sessionPort, signals signalPort) Model {
	return Model{
		code:    code,
		session: session,
		signals: signals,
		keys:    defaultKeys(),
		help:    help.New(),
		palette: components.NewPalette(paletteCommands),
		status:  "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tick())
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 72))
		m.help.Width = m.width
		return m, nil

	case tea.FocusMsg:
		return m, m.signalCmd(activitydomain.SignalFocus)

	case tea.BlurMsg:
		return m, m.signalCmd(activitydomain.SignalBlur)

	case tea.MouseMsg:
		return m, m.signalCmd(activitydomain.SignalInput)

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tick())

	case statusMsg:
		if msg.err != nil {
			m.status = "status: " + msg.err.Error()
			return m, nil
		}
		m.out = msg.out
		m.loaded = true
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = msg.verb + " failed: " + msg.err.Error()
			return m, nil
		}
		m.out = msg.out
		m.loaded = true
		m.status = msg.verb
		if msg.out.Done {
			m.status = "all tasks finished"
		}
		return m, nil

	case components.PaletteSubmitMsg:
		return m, m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"
		return m, nil

	case tea.KeyMsg:
		input := m.signalCmd(activitydomain.SignalInput)
		if m.palette.Visible() {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, tea.Batch(input, cmd)
		}
		if m.showHelp {
			if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, input
		}
		cmd := m.handleKey(msg)
		return m, tea.Batch(input, cmd)
	}

	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Palette):
		return m.palette.Open("")
	case m.out.Done:
		m.status = "session finished, press q to quit"
	case key.Matches(msg, m.keys.Complete):
		return m.completeCmd()
	case key.Matches(msg, m.keys.Skip):
		return m.palette.Open("skip ")
	case key.Matches(msg, m.keys.Pause):
		if m.manuallyPaused() {
			return m.unpauseCmd()
		}
		return m.pauseCmd()
	case key.Matches(msg, m.keys.Recording):
		next := "recording"
		if m.out.RecordingStatus == "recording" {
			next = "uploaded"
		}
		return m.recordingCmd(next)
	}
	return nil
}

func (m Model) manuallyPaused() bool {
	return m.out.Paused && m.out.PauseReason == "manual"
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := theme.Title.Render("studyrun") + "  " + theme.Hot.Render(m.code)
	var body string
	switch {
	case m.showHelp:
		body = m.help.View(m.keys)
	case m.palette.Visible():
		body = m.palette.View()
	default:
		body = m.renderSession()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", m.renderStatusBar())
}

func (m Model) renderSession() string {
	if !m.loaded {
		return theme.Muted.Render("loading session…")
	}
	out := m.out

	var sb strings.Builder
	switch {
	case out.Done:
		sb.WriteString(theme.Good.Render("All tasks finished") + "\n")
	default:
		fmt.Fprintf(&sb, "%s %s\n", theme.Muted.Render("task"), theme.Hot.Render(out.CurrentTask))
	}
	fmt.Fprintf(&sb, "%s %s\n\n", theme.Muted.Render("progress"), renderSequence(out))

	fmt.Fprintf(&sb, "%-9s %s\n", "session", renderTime(out.Session))
	if !out.Done {
		fmt.Fprintf(&sb, "%-9s %s\n", "task", renderTime(out.Task))
	}
	fmt.Fprintf(&sb, "%-9s %s\n", "recording", theme.Recording(out.RecordingStatus))

	style := theme.PaneActive
	if out.Paused {
		style = theme.PanePaused
		sb.WriteString("\n" + theme.Warn.Render("paused ("+out.PauseReason+")"))
	}
	width := m.width - 2
	if width < 40 {
		width = 60
	}
	return style.Width(width).Render(strings.TrimRight(sb.String(), "\n"))
}

func renderSequence(out sessiondto.SessionOutput) string {
	finished := map[string]string{}
	for _, t := range out.CompletedTasks {
		finished[t] = "✓"
	}
	for _, t := range out.SkippedTasks {
		finished[t] = "–"
	}
	parts := make([]string, len(out.Sequence))
	for i, t := range out.Sequence {
		switch {
		case finished[t] != "":
			parts[i] = theme.Muted.Render(finished[t] + t)
		case t == out.CurrentTask:
			parts[i] = theme.Hot.Render("▸" + t)
		default:
			parts[i] = t
		}
	}
	return strings.Join(parts, " ")
}

func renderTime(t sessiondto.TimeOutput) string {
	return fmt.Sprintf("%s elapsed  %s active  %s paused  %.0f%%",
		formatDuration(t.Elapsed), formatDuration(t.Active), formatDuration(t.Paused), t.ActivityPercent)
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	mnt := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

func (m Model) renderStatusBar() string {
	left := m.status
	right := m.help.ShortHelpView(m.keys.ShortHelp())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().Background(theme.Mantle).Render(left + strings.Repeat(" ", gap) + right)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m *Model) executePalette(input string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	if m.out.Done {
		m.status = "session finished"
		return nil
	}
	switch parts[0] {
	case "complete":
		return m.completeCmd()
	case "skip":
		return m.skipCmd(strings.Join(parts[1:], " "))
	case "pause":
		return m.pauseCmd()
	case "resume":
		return m.unpauseCmd()
	case "recording":
		if len(parts) != 2 {
			m.status = "usage: recording <idle|recording|uploaded|failed>"
			return nil
		}
		return m.recordingCmd(parts[1])
	default:
		m.status = "unknown command: " + parts[0]
		return nil
	}
}

// ─── async commands ───────────────────────────────────────────────────────────

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) signalCmd(kind activitydomain.SignalKind) tea.Cmd {
	if m.signals == nil {
		return nil
	}
	return func() tea.Msg {
		m.signals.Emit(kind)
		return nil
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Status(context.Background(), m.code)
		return statusMsg{out: out, err: err}
	}
}

func (m Model) completeCmd() tea.Cmd {
	task := m.out.CurrentTask
	return func() tea.Msg {
		out, err := m.session.Complete(context.Background(), m.code, task)
		return actionMsg{verb: "completed " + task, out: out, err: err}
	}
}

func (m Model) skipCmd(reason string) tea.Cmd {
	task := m.out.CurrentTask
	return func() tea.Msg {
		out, err := m.session.Skip(context.Background(), m.code, task, reason)
		return actionMsg{verb: "skipped " + task, out: out, err: err}
	}
}

func (m Model) pauseCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Pause(context.Background(), m.code)
		return actionMsg{verb: "paused", out: out, err: err}
	}
}

func (m Model) unpauseCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Unpause(context.Background(), m.code)
		return actionMsg{verb: "resumed", out: out, err: err}
	}
}

func (m Model) recordingCmd(status string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Recording(context.Background(), m.code, status)
		return actionMsg{verb: "recording " + status, out: out, err: err}
	}
}
