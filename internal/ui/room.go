package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/huddle/internal/chat"
	"github.com/BioHazard786/huddle/internal/mesh"
)

// Controller is what the room view drives.
type Controller interface {
	Self() string
	Links() []mesh.Link
	ToggleLocalAudio() (bool, error)
	ToggleLocalVideo() (bool, error)
	ToggleScreenShare() (bool, error)
	SendChat(text string) error
}

// RoomState is the initial media state shown in the status bar.
type RoomState struct {
	Room        string
	DisplayName string
	Audio       bool
	Video       bool
}

type (
	eventMsg mesh.Event
	doneMsg  struct{}
	TickMsg  time.Time
)

const refreshInterval = time.Second

// RoomModel is the in-call view: participants, chat, and media controls.
type RoomModel struct {
	ctrl   Controller
	events <-chan mesh.Event
	done   <-chan struct{}

	state   RoomState
	sharing bool

	links    []mesh.Link
	messages []chat.Message
	status   string

	input   textinput.Model
	chat    viewport.Model
	spinner spinner.Model

	width    int
	quitting bool
}

// NewRoomModel builds the view. events and done usually come from the
// orchestrator.
func NewRoomModel(ctrl Controller, events <-chan mesh.Event, done <-chan struct{}, state RoomState) *RoomModel {
	input := textinput.New()
	input.Placeholder = "Say something"
	input.Prompt = IconChat + " "
	input.CharLimit = 2000
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		ctrl:    ctrl,
		events:  events,
		done:    done,
		state:   state,
		input:   input,
		chat:    viewport.New(80, 10),
		spinner: s,
		width:   80,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForEvent(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *RoomModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.events:
			return eventMsg(ev)
		case <-m.done:
			return doneMsg{}
		}
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+a":
			m.toggle("Microphone", m.ctrl.ToggleLocalAudio, &m.state.Audio)
			return m, nil
		case "ctrl+w":
			m.toggle("Camera", m.ctrl.ToggleLocalVideo, &m.state.Video)
			return m, nil
		case "ctrl+s":
			m.toggle("Screen share", m.ctrl.ToggleScreenShare, &m.sharing)
			return m, nil
		case "enter":
			m.sendChat()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-6)
		m.chat.Width = max(20, msg.Width-4)
		m.chat.Height = max(3, msg.Height-len(m.links)-14)
		m.refreshChat()

	case eventMsg:
		m.handleEvent(mesh.Event(msg))
		return m, m.waitForEvent()

	case doneMsg:
		m.quitting = true
		return m, tea.Quit

	case TickMsg:
		m.links = m.ctrl.Links()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.chat, cmd = m.chat.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *RoomModel) toggle(label string, fn func() (bool, error), flag *bool) {
	on, err := fn()
	if err != nil {
		m.status = ErrorStyle.Render(fmt.Sprintf("%s: %v", label, err))
		return
	}
	*flag = on
	state := "off"
	if on {
		state = "on"
	}
	m.status = fmt.Sprintf("%s %s", label, state)
}

func (m *RoomModel) sendChat() {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := m.ctrl.SendChat(text); err != nil {
		m.status = ErrorStyle.Render("Chat: " + err.Error())
		return
	}
	m.input.Reset()
}

func (m *RoomModel) handleEvent(ev mesh.Event) {
	switch ev.Kind {
	case mesh.EventChat:
		m.messages = append(m.messages, ev.Chat)
		m.refreshChat()
	case mesh.EventLinkUp:
		m.links = m.ctrl.Links()
		m.status = fmt.Sprintf("%s %s connected", IconConnect, ev.Link.DisplayName)
	case mesh.EventLinkDown:
		m.links = m.ctrl.Links()
		m.status = fmt.Sprintf("%s left", ev.Link.DisplayName)
	case mesh.EventLinkFailed:
		m.links = m.ctrl.Links()
		m.status = WarningStyle.Render(fmt.Sprintf("Could not connect to %s: %v", ev.PeerID, ev.Err))
	case mesh.EventError:
		m.status = ErrorStyle.Render(ev.Err.Error())
	}
}

func (m *RoomModel) refreshChat() {
	self := m.ctrl.Self()
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, FormatChatLine(msg, self))
	}
	m.chat.SetContent(strings.Join(lines, "\n"))
	m.chat.GotoBottom()
}

// FormatChatLine renders one chat line, marking our own messages.
func FormatChatLine(msg chat.Message, self string) string {
	stamp := MutedStyle.Render(msg.Timestamp.Format("15:04"))
	if msg.System() {
		return fmt.Sprintf("%s %s", stamp, SystemStyle.Render(msg.Text))
	}
	author := AuthorStyle.Render(msg.AuthorName)
	if msg.OriginID == self {
		author = SelfStyle.Render(msg.AuthorName + " (you)")
	}
	return fmt.Sprintf("%s %s: %s", stamp, author, msg.Text)
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("%s %s  %s %s", IconRoom, m.state.Room, IconPeer, m.state.DisplayName)
	b.WriteString(HeaderStyle.Render(header) + "\n\n")

	if len(m.links) == 0 {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(PeerTableView(m.links) + "\n\n")

	b.WriteString(ChatBoxStyle.Width(max(20, m.width-2)).Render(m.chat.View()) + "\n")
	b.WriteString(m.input.View() + "\n\n")

	b.WriteString(m.statusBar() + "\n")
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(FooterStyle.Render("ctrl+a mic • ctrl+w camera • ctrl+s screen • enter send • esc leave"))

	return b.String()
}

func (m *RoomModel) statusBar() string {
	mic, cam := IconMuted+" muted", IconNoCamera+" camera off"
	if m.state.Audio {
		mic = IconMic + " live"
	}
	if m.state.Video {
		cam = IconCamera + " camera on"
	}
	parts := []string{mic, cam}
	if m.sharing {
		parts = append(parts, IconScreen+" sharing")
	}
	return StatusStyle.Render(strings.Join(parts, "  "))
}

// Quitting reports whether the user asked to leave.
func (m *RoomModel) Quitting() bool {
	return m.quitting
}

// RunRoom takes over the terminal until the user leaves or the session ends.
func RunRoom(m *RoomModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
