package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Strangers/internal/chat"
	"github.com/BioHazard786/Strangers/internal/wsclient"
)

// Session is the part of a conversation the chat screen drives.
type Session interface {
	Send(text string) error
	Skip() error
}

type eventMsg chat.Event

type eventsClosedMsg struct{}

// chrome is the number of rows taken by header, status bar and input.
const chrome = 4

// ChatModel is the interactive chat screen.
type ChatModel struct {
	session Session
	events  <-chan chat.Event

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	lines    []string
	status   string
	partner  string
	paired   bool
	direct   bool
	ready    bool
	quitting bool
	err      error
	now      func() time.Time
}

// NewChatModel creates the chat screen for session, rendering events as they
// arrive.
func NewChatModel(session Session, events <-chan chat.Event) *ChatModel {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter"
	input.CharLimit = 2000
	input.Prompt = "> "
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		session: session,
		events:  events,
		input:   input,
		spinner: s,
		status:  "Connecting...",
		now:     time.Now,
	}
}

// Err returns the error that ended the chat, if any.
func (m *ChatModel) Err() error {
	return m.err
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listen())
}

func (m *ChatModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "ctrl+n":
			if err := m.session.Skip(); errors.Is(err, chat.ErrNotPaired) {
				m.notice(WarningStyle, "Nobody to skip yet")
			} else if err != nil {
				m.notice(ErrorStyle, "Skip failed: "+err.Error())
			} else {
				m.notice(NoticeStyle, "You skipped "+m.partner)
				m.paired = false
				m.direct = false
				m.status = "Looking for a stranger..."
			}
			return m, nil

		case "enter":
			m.submit()
			return m, nil
		}

	case tea.WindowSizeMsg:
		height := max(msg.Height-chrome, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case eventMsg:
		if quit := m.apply(chat.Event(msg)); quit {
			return m, tea.Quit
		}
		cmds = append(cmds, m.listen())

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}

	if err := m.session.Send(text); err != nil {
		if errors.Is(err, chat.ErrNotPaired) {
			m.notice(WarningStyle, "Still looking for someone, hang on")
		} else {
			m.notice(ErrorStyle, "Message not sent: "+err.Error())
		}
		return
	}

	m.line(SelfNameStyle.Render("you"), text, m.now())
	m.input.Reset()
}

// apply folds a conversation event into the screen state. It reports whether
// the program should exit.
func (m *ChatModel) apply(ev chat.Event) bool {
	switch ev.Kind {
	case chat.EventConnected:
		m.status = "Connected, finding a stranger..."

	case chat.EventWaiting:
		m.paired = false
		m.direct = false
		m.status = "Looking for a stranger..."

	case chat.EventMatched:
		m.paired = true
		m.direct = false
		m.partner = ev.Partner
		m.status = "Chatting with " + ev.Partner
		m.notice(SuccessStyle, fmt.Sprintf("%s You're now chatting with %s. Say hi!", IconPeer, ev.Partner))

	case chat.EventMessage:
		m.line(PartnerNameStyle.Render(ev.Partner), ev.Text, ev.At)

	case chat.EventDirect:
		m.direct = true
		m.notice(NoticeStyle, IconDirect+" Direct connection established")

	case chat.EventRelayed:
		m.direct = false
		m.notice(NoticeStyle, IconRelay+" Direct connection lost, relaying through server")

	case chat.EventPartnerLeft:
		m.paired = false
		m.direct = false
		verb := "left"
		if ev.Reason == wsclient.PartnerSkipped {
			verb = "skipped you"
		}
		m.notice(WarningStyle, fmt.Sprintf("%s %s %s", IconLeft, ev.Partner, verb))
		m.status = "Stranger left"

	case chat.EventClosed:
		m.err = ev.Err
		m.quitting = true
		return true
	}
	return false
}

func (m *ChatModel) line(name, text string, at time.Time) {
	if at.IsZero() {
		at = m.now()
	}
	m.lines = append(m.lines, fmt.Sprintf("%s %s: %s", TimestampStyle.Render(at.Format("15:04")), name, text))
	m.refresh()
}

func (m *ChatModel) notice(style lipgloss.Style, text string) {
	m.lines = append(m.lines, style.Render(text))
	m.refresh()
}

func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Strangers"))
	b.WriteString("\n")

	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(strings.Join(m.lines, "\n"))
	}
	b.WriteString("\n")

	b.WriteString(m.statusBar())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m *ChatModel) statusBar() string {
	var state string
	switch {
	case m.paired && m.direct:
		state = StatusStyle.Render(IconDirect + " direct")
	case m.paired:
		state = StatusStyle.Render(IconRelay + " relay")
	default:
		state = m.spinner.View()
	}

	help := FooterStyle.Render("enter send • ctrl+n next • esc quit")
	return fmt.Sprintf("%s %s  %s", state, m.status, help)
}
