package registry

import (
	"sync"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Participant is one connection's membership in a room.
type Participant struct {
	ConnectionID string
	PeerID       string
	DisplayName  string

	client *Client
}

// label is the name used in join/leave announcements.
func (p *Participant) label() string {
	if p.DisplayName == "" {
		return "Anonymous"
	}
	return p.DisplayName
}

func (p *Participant) public() protocol.Participant {
	return protocol.Participant{PeerID: p.PeerID, DisplayName: p.DisplayName}
}

// Room is a named set of participants. All membership changes and fan-out
// for a room happen while holding mu, so observers see them in one order.
type Room struct {
	// ID is the room key chosen by clients.
	ID string

	mu sync.Mutex

	// members in join order.
	members []*Participant

	// closed is set once the room has been emptied and dropped from the
	// registry. A joiner holding a stale pointer must look the room up again.
	closed bool
}

func newRoom(id string) *Room {
	return &Room{ID: id}
}

// others returns every member except the given connection. Caller holds mu.
func (rm *Room) others(connectionID string) []*Participant {
	out := make([]*Participant, 0, len(rm.members))
	for _, p := range rm.members {
		if p.ConnectionID != connectionID {
			out = append(out, p)
		}
	}
	return out
}

// remove drops the participant with the given connection id. Caller holds mu.
func (rm *Room) remove(connectionID string) bool {
	for i, p := range rm.members {
		if p.ConnectionID == connectionID {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			return true
		}
	}
	return false
}

// find returns the member holding peerID. Caller holds mu.
func (rm *Room) find(peerID string) *Participant {
	for _, p := range rm.members {
		if p.PeerID == peerID {
			return p
		}
	}
	return nil
}

// broadcast enqueues msg for every member except skip. Caller holds mu.
func (rm *Room) broadcast(msg *protocol.Message, skip string) {
	for _, p := range rm.members {
		if p.ConnectionID == skip {
			continue
		}
		p.client.deliver(msg)
	}
}

// RoomInfo is a read-only snapshot of a room for operators.
type RoomInfo struct {
	ID           string                 `json:"id"`
	Participants []protocol.Participant `json:"participants"`
}
