package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/chat"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/mesh"
	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/registry"
)

type fakeController struct {
	audio, video, screen bool
	screenErr            error
	sent                 []string
	links                []mesh.Link
}

func (f *fakeController) Self() string       { return "me" }
func (f *fakeController) Links() []mesh.Link { return f.links }

func (f *fakeController) ToggleLocalAudio() (bool, error) {
	f.audio = !f.audio
	return f.audio, nil
}

func (f *fakeController) ToggleLocalVideo() (bool, error) {
	f.video = !f.video
	return f.video, nil
}

func (f *fakeController) ToggleScreenShare() (bool, error) {
	if f.screenErr != nil {
		return false, f.screenErr
	}
	f.screen = !f.screen
	return f.screen, nil
}

func (f *fakeController) SendChat(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func newTestRoom(ctrl *fakeController) *RoomModel {
	return NewRoomModel(ctrl, make(chan mesh.Event), make(chan struct{}), RoomState{
		Room:        "standup",
		DisplayName: "Me",
		Audio:       true,
		Video:       true,
	})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+a":
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	case "ctrl+w":
		return tea.KeyMsg{Type: tea.KeyCtrlW}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRoomToggles(t *testing.T) {
	ctrl := &fakeController{audio: true, video: true}
	m := newTestRoom(ctrl)

	m.Update(key("ctrl+a"))
	assert.False(t, m.state.Audio)
	assert.Contains(t, m.View(), "muted")

	m.Update(key("ctrl+w"))
	assert.False(t, m.state.Video)
	assert.Contains(t, m.View(), "camera off")

	m.Update(key("ctrl+s"))
	assert.True(t, m.sharing)
	assert.Contains(t, m.View(), "sharing")
}

func TestRoomToggleErrorShown(t *testing.T) {
	ctrl := &fakeController{screenErr: errors.New("no screen source")}
	m := newTestRoom(ctrl)

	m.Update(key("ctrl+s"))
	assert.False(t, m.sharing)
	assert.Contains(t, m.View(), "no screen source")
}

func TestRoomSendChat(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestRoom(ctrl)

	m.Update(key("enter"))
	assert.Empty(t, ctrl.sent, "blank input is not sent")

	m.input.SetValue("hello team")
	m.Update(key("enter"))
	require.Equal(t, []string{"hello team"}, ctrl.sent)
	assert.Empty(t, m.input.Value())
}

func TestRoomShowsChatAndLinks(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestRoom(ctrl)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	log := chat.NewLog()
	m.Update(eventMsg{Kind: mesh.EventChat, Chat: log.Append(protocol.ChatPayload{
		Kind: protocol.ChatKindUser, Content: "hi all", OriginID: "bob", AuthorName: "Bob",
	})})
	m.Update(eventMsg{Kind: mesh.EventChat, Chat: log.Append(protocol.ChatPayload{
		Kind: protocol.ChatKindSystem, Content: "Carol joined the meeting", OriginID: protocol.SystemOrigin,
	})})

	ctrl.links = []mesh.Link{{PeerID: "bob", DisplayName: "Bob", Stream: media.NewRemoteStream("bob")}}
	m.Update(eventMsg{Kind: mesh.EventLinkUp, PeerID: "bob", Link: ctrl.links[0]})

	view := m.View()
	assert.Contains(t, view, "hi all")
	assert.Contains(t, view, "Carol joined the meeting")
	assert.Contains(t, view, "Bob")
	assert.Contains(t, view, "originated")
	assert.Contains(t, view, "Bob connected")
}

func TestRoomQuits(t *testing.T) {
	m := newTestRoom(&fakeController{})

	_, cmd := m.Update(key("esc"))
	require.NotNil(t, cmd)
	assert.True(t, m.Quitting())
	assert.Empty(t, m.View())

	m = newTestRoom(&fakeController{})
	_, cmd = m.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestFormatChatLine(t *testing.T) {
	at := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

	line := FormatChatLine(chat.Message{Kind: protocol.ChatKindUser, Text: "hey", AuthorName: "Me", OriginID: "me", Timestamp: at}, "me")
	assert.Contains(t, line, "(you)")
	assert.Contains(t, line, "09:30")
}

func TestPeerTableEmpty(t *testing.T) {
	assert.Contains(t, PeerTableView(nil), "Waiting for others")
}

func TestRenderRooms(t *testing.T) {
	var buf bytes.Buffer
	RenderRooms(&buf, []registry.RoomInfo{
		{ID: "standup", Participants: []protocol.Participant{{PeerID: "a", DisplayName: "Alice"}, {PeerID: "b", DisplayName: "Bob"}}},
	})
	out := buf.String()
	assert.Contains(t, out, "standup")
	assert.Contains(t, out, "Alice, Bob")

	buf.Reset()
	RenderRooms(&buf, nil)
	assert.Contains(t, buf.String(), "No active rooms")
}
