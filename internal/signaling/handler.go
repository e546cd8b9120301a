package signaling

import (
	"context"
	"errors"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// ErrNoIdentity is returned when the connection ends before session-ready.
var ErrNoIdentity = errors.New("connection closed before identity was assigned")

// MembershipEvent is a user-connected or user-disconnected notification.
// Both kinds share one channel so their relative order is kept.
type MembershipEvent struct {
	Joined bool
	Peer   protocol.Participant
}

// Source is anything that yields decoded server messages.
type Source interface {
	Incoming() <-chan *protocol.Message
}

// Handler routes incoming signaling messages to appropriate channels.
// Every channel is closed once the source is exhausted.
type Handler struct {
	source       Source
	Ready        chan string
	Participants chan []protocol.Participant
	Membership   chan MembershipEvent
	Chat         chan protocol.ChatPayload
	Signal       chan *protocol.SignalPayload
	Error        chan string
	done         chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(source Source) *Handler {
	return &Handler{
		source:       source,
		Ready:        make(chan string, 1),
		Participants: make(chan []protocol.Participant, 4),
		Membership:   make(chan MembershipEvent, 64),
		Chat:         make(chan protocol.ChatPayload, 64),
		Signal:       make(chan *protocol.SignalPayload, 128),
		Error:        make(chan string, 8),
		done:         make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them.
// It returns when the source is closed.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.source.Incoming() {
		switch msg.Type {

		case protocol.TypeSessionReady:
			select {
			case h.Ready <- msg.PeerID:
			default:
			}

		case protocol.TypeParticipantsList:
			h.Participants <- msg.Participants

		case protocol.TypeUserConnected:
			h.Membership <- MembershipEvent{Joined: true, Peer: peerOf(msg)}

		case protocol.TypeUserDisconnected:
			h.Membership <- MembershipEvent{Joined: false, Peer: peerOf(msg)}

		case protocol.TypeChatMessage:
			if msg.Chat != nil {
				h.Chat <- *msg.Chat
			}

		case protocol.TypeSignal:
			if msg.Signal != nil {
				h.Signal <- msg.Signal
			}

		case protocol.TypeError:
			// Nobody may be listening; errors are advisory.
			select {
			case h.Error <- msg.Error:
			default:
			}

		default:
		}
	}
}

// WaitIdentity blocks until the server proposes our identity.
func (h *Handler) WaitIdentity(ctx context.Context) (string, error) {
	select {
	case id, ok := <-h.Ready:
		if !ok {
			return "", ErrNoIdentity
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed after the source has been drained.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

func (h *Handler) close() {
	close(h.Ready)
	close(h.Participants)
	close(h.Membership)
	close(h.Chat)
	close(h.Signal)
	close(h.Error)
	close(h.done)
}

func peerOf(msg *protocol.Message) protocol.Participant {
	return protocol.Participant{PeerID: msg.PeerID, DisplayName: msg.DisplayName}
}
