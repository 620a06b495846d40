// Package tui is the interactive chat view.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/agentdesk/internal/chat"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/stream"
)

// loadedMsg reports the outcome of LoadConversation.
type loadedMsg struct{ err error }

// openedMsg reports the outcome of OpenChannel.
type openedMsg struct{ err error }

// eventMsg carries one frame from the channel. ok is false once it closed.
type eventMsg struct {
	frame stream.Frame
	ok    bool
}

// Options configures the chat view.
type Options struct {
	Markdown    bool
	ShowMetrics bool
	// GlamourStyle is a glamour standard style, or "auto".
	GlamourStyle string
}

// Model is the Bubble Tea model for one agent conversation.
type Model struct {
	ctx     context.Context
	session *chat.Session
	render  *Renderer

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	loading  bool
	quitting bool
	events   <-chan stream.Frame
	width    int
	height   int
	ready    bool
}

// New returns the chat view for session. The session must not be loaded yet;
// the model drives LoadConversation and OpenChannel itself.
func New(ctx context.Context, session *chat.Session, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask your agent a question..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return Model{
		ctx:      ctx,
		session:  session,
		render:   NewRenderer(opts.Markdown, opts.ShowMetrics, opts.GlamourStyle),
		viewport: viewport.New(80, 20),
		input:    ta,
		spinner:  sp,
		loading:  true,
		width:    80,
		height:   24,
	}
}

// Init starts loading.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.spinner.Tick, textarea.Blink)
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.session.LoadConversation(m.ctx)}
	}
}

func (m Model) openCmd() tea.Cmd {
	return func() tea.Msg {
		return openedMsg{err: m.session.OpenChannel(m.ctx)}
	}
}

func waitForEvent(events <-chan stream.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-events
		return eventMsg{frame: f, ok: ok}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m.quit()
		case tea.KeyEsc:
			m.session.DismissError()
			m.layout()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case loadedMsg:
		m.loading = false
		m.refresh()
		if msg.err != nil {
			return m, nil
		}
		return m, m.openCmd()

	case openedMsg:
		m.refresh()
		if msg.err != nil {
			return m, nil
		}
		m.events = m.session.Events()
		if m.events == nil {
			return m, nil
		}
		return m, waitForEvent(m.events)

	case eventMsg:
		if !msg.ok {
			m.events = nil
			m.refresh()
			return m, nil
		}
		m.session.Apply(msg.frame)
		m.refresh()
		return m, waitForEvent(m.events)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.canType() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// canType reports whether the input accepts keystrokes: loaded and nothing in flight.
func (m Model) canType() bool {
	return !m.loading && m.session.State() == chat.StateConnected
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.canType() {
		return m, nil
	}
	text := m.input.Value()
	// Refusals surface through the session banner.
	if ok, _ := m.session.SendMessage(m.ctx, text); ok {
		m.input.Reset()
		m.input.Blur()
	}
	m.refresh()
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	_ = m.session.Close()
	return m, tea.Quit
}

// refresh re-renders the conversation into the viewport.
func (m *Model) refresh() {
	snap := m.session.Snapshot()
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.render.Messages(snap.Messages, snap.OpenID))
	if atBottom || snap.OpenID != "" {
		m.viewport.GotoBottom()
	}
	if snap.State == chat.StateConnected && !m.input.Focused() {
		m.input.Focus()
	}
	m.layout()
}

func (m *Model) layout() {
	header := lipgloss.Height(m.headerView())
	footer := lipgloss.Height(m.footerView())
	h := m.height - header - footer
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.SetWidth(m.width - 2)
	m.render.SetWidth(m.width)
}

func (m Model) headerView() string {
	snap := m.session.Snapshot()
	if snap.Agent.Name == "" {
		return titleStyle.Render("agentdesk")
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(snap.Agent.Name))
	if snap.Agent.SystemPrompt != "" {
		sb.WriteString("\n" + mutedStyle.Render(truncate(snap.Agent.SystemPrompt, m.width)))
	}
	chips := make([]string, 0, len(snap.Agent.Tools))
	for _, tool := range snap.Agent.Tools {
		chips = append(chips, chipStyle.Render(domain.ToolDisplayName(tool)))
	}
	if len(chips) == 0 {
		chips = append(chips, chipStyle.Render("no tools"))
	}
	sb.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Top, chips...))
	return sb.String()
}

func (m Model) footerView() string {
	snap := m.session.Snapshot()
	var lines []string
	if snap.Banner != "" {
		lines = append(lines, bannerStyle.Render(snap.Banner+"  (esc to dismiss)"))
	}
	switch {
	case snap.ToolStatus != "":
		lines = append(lines, m.spinner.View()+" "+statusStyle.Render(snap.ToolStatus))
	case snap.State == chat.StateAwaiting:
		lines = append(lines, m.spinner.View()+" "+statusStyle.Render("Waiting for reply..."))
	case snap.State == chat.StateStreaming:
		lines = append(lines, m.spinner.View()+" "+statusStyle.Render("Typing..."))
	}
	lines = append(lines, m.input.View())
	hint := "enter send | esc dismiss error | ctrl+c quit"
	if !snap.Connected && snap.State == chat.StateConnected {
		hint = "offline | " + hint
	}
	lines = append(lines, mutedStyle.Render(hint))
	return strings.Join(lines, "\n")
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.loading {
		return m.spinner.View() + " Loading agent..."
	}
	snap := m.session.Snapshot()
	if snap.State == chat.StateFailed {
		msg := "Failed to load agent data."
		if domain.NeedsLogin(snap.LoadErr) {
			msg = "Your session has expired. Run `agentdesk login` and try again."
		} else if snap.LoadErr != nil {
			var le *domain.LoadError
			if errors.As(snap.LoadErr, &le) {
				msg += "\n" + le.Err.Error()
			}
		}
		return blockedStyle.Render(msg + "\n\nPress ctrl+c to exit.")
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// Run shows the chat view until the user quits. The session is closed on return.
func Run(ctx context.Context, session *chat.Session, opts Options) error {
	defer session.Close()
	p := tea.NewProgram(New(ctx, session, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		if snap := fm.session.Snapshot(); snap.LoadErr != nil {
			return snap.LoadErr
		}
	}
	return nil
}
