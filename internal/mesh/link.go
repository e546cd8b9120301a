package mesh

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/huddle/internal/media"
)

// Direction records which side started a link.
type Direction int

const (
	// Originated links were started by us toward a newer arrival.
	Originated Direction = iota
	// Accepted links were answered by us as the newer arrival.
	Accepted
)

func (d Direction) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "originated"
}

// State is the per-identity link state.
type State int

const (
	Unlinked State = iota
	Pending
	Linked
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Linked:
		return "linked"
	default:
		return "unlinked"
	}
}

// Link is an established media connection to one remote participant.
type Link struct {
	PeerID      string
	DisplayName string
	Direction   Direction
	Stream      *media.RemoteStream

	call Call

	// shadows are duplicate inbound calls that were answered for this
	// identity. Their streams are discarded; they die with the link.
	shadows []Call
}

// close releases the call, its shadows and the remote stream.
func (l *Link) close() {
	closeCalls(append([]Call{l.call}, l.shadows...))
	if l.Stream != nil {
		l.Stream.Release()
	}
}

// calls returns the primary call followed by its shadows.
func (l *Link) calls() []Call {
	return append([]Call{l.call}, l.shadows...)
}

func closeCalls(calls []Call) {
	for _, c := range calls {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Debug("close call", "peer", c.PeerID(), "error", err)
		}
	}
}

// entry is the table row for one remote identity.
type entry struct {
	state     State
	direction Direction

	// token identifies the attempt that owns this row; results carrying
	// another token are stale.
	token uint64

	// ctx lives until the row is removed.
	ctx    context.Context
	cancel context.CancelFunc

	link    *Link
	shadows []Call
}
