package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Registry is the authoritative map of rooms to participants.
//
// mu guards only the room map and the identity index. Each Room has its own
// lock, so traffic in one room never waits on another. Lock order is always
// room before registry.
type Registry struct {
	mu         sync.Mutex
	rooms      map[string]*Room
	identities map[string]*Client

	metrics *Metrics
}

// New creates an empty registry. A nil metrics gets unregistered collectors.
func New(metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		rooms:      make(map[string]*Room),
		identities: make(map[string]*Client),
		metrics:    metrics,
	}
}

// Register announces a new connection and proposes its identity.
func (r *Registry) Register(c *Client) {
	r.metrics.Connections.Inc()
	slog.Debug("client registered", "conn", c.ID)
	c.deliver(&protocol.Message{Type: protocol.TypeSessionReady, PeerID: c.PeerID})
}

// Unregister runs the leave path for a closed or evicted connection and
// stops its writer, which closes the websocket. Safe to call more than once.
func (r *Registry) Unregister(c *Client) {
	c.unregister.Do(func() {
		r.Leave(c)
		c.close()
		r.metrics.Connections.Dec()
		slog.Debug("client unregistered", "conn", c.ID)
	})
}

// Handle dispatches one inbound message. Failures are reported to the sender
// as error events and never affect other connections.
func (r *Registry) Handle(c *Client, msg *protocol.Message) {
	var err error

	switch msg.Type {
	case protocol.TypeJoinRoom:
		err = r.Join(c, msg.RoomID, msg.PeerID, msg.DisplayName)

	case protocol.TypeLeaveRoom:
		r.Leave(c)

	case protocol.TypeChatMessage:
		var content string
		if msg.Chat != nil {
			content = msg.Chat.Content
		}
		err = r.Chat(c, msg.RoomID, content, msg.DisplayName)

	case protocol.TypeSignal:
		err = r.Relay(c, msg.Signal)

	default:
		r.metrics.Events.WithLabelValues("unknown").Inc()
		c.deliver(protocol.NewError(fmt.Sprintf("%s: %q", ErrUnknownMessage, msg.Type)))
		return
	}

	r.metrics.Events.WithLabelValues(msg.Type).Inc()
	if err != nil {
		slog.Debug("rejected client message", "conn", c.ID, "type", msg.Type, "error", err)
		c.deliver(protocol.NewError(err.Error()))
	}
}

// Join adds the connection to room under peerID. A connection that is
// already in a room leaves it first. The joiner receives the current members
// (excluding itself); every other member receives user-connected followed by
// a system announcement.
func (r *Registry) Join(c *Client, roomID, peerID, displayName string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrEmptyRoom
	}
	if peerID == "" {
		return ErrEmptyIdentity
	}

	if room, _ := c.membership(); room != nil {
		r.Leave(c)
	}

	if err := r.claimIdentity(c, peerID); err != nil {
		return err
	}

	p := &Participant{
		ConnectionID: c.ID,
		PeerID:       peerID,
		DisplayName:  displayName,
		client:       c,
	}

	for {
		room := r.getOrCreate(roomID)

		room.mu.Lock()
		if room.closed {
			// Emptied and dropped between lookup and lock.
			room.mu.Unlock()
			continue
		}

		others := room.others(c.ID)
		room.members = append(room.members, p)
		c.setMembership(room, p)

		connected := &protocol.Message{
			Type:        protocol.TypeUserConnected,
			RoomID:      room.ID,
			PeerID:      p.PeerID,
			DisplayName: p.DisplayName,
		}
		announce := protocol.NewSystemChat(room.ID, p.label()+" joined the meeting")
		for _, o := range others {
			o.client.deliver(connected)
			o.client.deliver(announce)
		}

		list := make([]protocol.Participant, 0, len(others))
		for _, o := range others {
			list = append(list, o.public())
		}
		c.deliver(&protocol.Message{
			Type:         protocol.TypeParticipantsList,
			RoomID:       room.ID,
			Participants: list,
		})

		room.mu.Unlock()
		break
	}

	r.metrics.Participants.Inc()
	slog.Info("participant joined", "room", roomID, "peer", peerID, "conn", c.ID)
	return nil
}

// Leave removes the connection from its room, notifies the remaining members
// and releases its identity. It is a no-op for connections that never joined.
func (r *Registry) Leave(c *Client) {
	room, p := c.takeMembership()
	if room == nil {
		return
	}

	room.mu.Lock()
	if room.remove(c.ID) {
		disconnected := &protocol.Message{
			Type:        protocol.TypeUserDisconnected,
			RoomID:      room.ID,
			PeerID:      p.PeerID,
			DisplayName: p.DisplayName,
		}
		announce := protocol.NewSystemChat(room.ID, p.label()+" left the meeting")
		room.broadcast(disconnected, "")
		room.broadcast(announce, "")

		r.metrics.Participants.Dec()
	}

	if len(room.members) == 0 && !room.closed {
		room.closed = true
		r.mu.Lock()
		if r.rooms[room.ID] == room {
			delete(r.rooms, room.ID)
			r.metrics.Rooms.Dec()
		}
		r.mu.Unlock()
		slog.Debug("room reclaimed", "room", room.ID)
	}
	room.mu.Unlock()

	r.releaseIdentity(c, p.PeerID)
	slog.Info("participant left", "room", room.ID, "peer", p.PeerID, "conn", c.ID)
}

// Chat relays a user message to every member of roomID, sender included.
// An empty roomID means the sender's current room.
func (r *Registry) Chat(c *Client, roomID, content, displayName string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	room, p := c.membership()
	if room == nil || (roomID != "" && room.ID != roomID) {
		return ErrNotInRoom
	}

	author := displayName
	if author == "" {
		author = p.DisplayName
	}

	msg := &protocol.Message{
		Type:   protocol.TypeChatMessage,
		RoomID: room.ID,
		Chat: &protocol.ChatPayload{
			Kind:       protocol.ChatKindUser,
			Content:    content,
			OriginID:   p.PeerID,
			AuthorName: author,
		},
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return ErrNotInRoom
	}
	room.broadcast(msg, "")
	return nil
}

// Relay forwards a negotiation signal to the member of the sender's room
// that holds sig.To. The sender's identity is stamped into From.
func (r *Registry) Relay(c *Client, sig *protocol.SignalPayload) error {
	if sig == nil || sig.To == "" || sig.CallID == "" {
		return ErrInvalidSignal
	}

	room, p := c.membership()
	if room == nil {
		return ErrNotInRoom
	}

	out := *sig
	out.From = p.PeerID

	room.mu.Lock()
	defer room.mu.Unlock()

	target := room.find(sig.To)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, sig.To)
	}
	target.client.deliver(&protocol.Message{Type: protocol.TypeSignal, RoomID: room.ID, Signal: &out})
	return nil
}

// Rooms returns a snapshot of every live room, sorted by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.closed {
			info := RoomInfo{ID: room.ID, Participants: make([]protocol.Participant, 0, len(room.members))}
			for _, p := range room.members {
				info.Participants = append(info.Participants, p.public())
			}
			infos = append(infos, info)
		}
		room.mu.Unlock()
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Registry) getOrCreate(id string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		room = newRoom(id)
		r.rooms[id] = room
		r.metrics.Rooms.Inc()
		slog.Debug("room created", "room", id)
	}
	return room
}

func (r *Registry) claimIdentity(c *Client, peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.identities[peerID]; ok && holder != c {
		return ErrIdentityInUse
	}
	r.identities[peerID] = c
	return nil
}

func (r *Registry) releaseIdentity(c *Client, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.identities[peerID] == c {
		delete(r.identities, peerID)
	}
}
