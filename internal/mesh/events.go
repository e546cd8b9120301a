package mesh

import (
	"log/slog"

	"github.com/BioHazard786/huddle/internal/chat"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// EventKind classifies session events.
type EventKind int

const (
	EventLinkUp EventKind = iota
	EventLinkDown
	EventLinkFailed
	EventChat
	EventParticipants
	EventError
)

// Event is a session change published for display.
type Event struct {
	Kind   EventKind
	PeerID string

	// Link is set for EventLinkUp and EventLinkDown.
	Link Link

	// Chat is set for EventChat.
	Chat chat.Message

	// Participants is set for EventParticipants.
	Participants []protocol.Participant

	// Err is set for EventLinkFailed and EventError.
	Err error
}

const eventBuffer = 128

// emit publishes without blocking. Display consumers that fall behind lose
// events, never the session.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		slog.Debug("event dropped", "kind", ev.Kind, "peer", ev.PeerID)
	}
}
