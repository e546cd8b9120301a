package mesh

import (
	"context"

	"github.com/BioHazard786/huddle/internal/media"
)

// Attempt is an inbound media call that has not been answered yet.
type Attempt interface {
	PeerID() string

	// Reject discards the attempt without answering.
	Reject()
}

// Call is an established media call with one peer.
type Call interface {
	PeerID() string

	// Stream is the media received from the peer.
	Stream() *media.RemoteStream

	// ReplaceSource swaps the outgoing tracks without renegotiating.
	ReplaceSource(src media.Source) error

	// Close tears the call down. Safe to call more than once.
	Close() error

	// Done is closed once the call has failed or been closed.
	Done() <-chan struct{}
}

// Negotiator performs the media handshake. Each method resolves exactly
// once, with a call or an error. ctx bounds the negotiation only: a call
// that has been returned outlives it.
type Negotiator interface {
	Originate(ctx context.Context, peerID string, src media.Source) (Call, error)
	Answer(ctx context.Context, attempt Attempt, src media.Source) (Call, error)
}

// RoomClient is the orchestrator's view of the registry connection.
type RoomClient interface {
	Join(room, peerID, displayName string) error
	Chat(room, text, displayName string) error
	Close() error
}

// IdentitySource yields the connection identity assigned by the registry.
type IdentitySource interface {
	WaitIdentity(ctx context.Context) (string, error)
}

// MediaProvider acquires the local media source.
type MediaProvider func(ctx context.Context) (media.Source, error)
