package mesh

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/signaling"
)

// Feed carries the inbound event streams of a session.
type Feed struct {
	Membership   <-chan signaling.MembershipEvent
	Participants <-chan []protocol.Participant
	Chat         <-chan protocol.ChatPayload
	Incoming     <-chan Attempt
	Errors       <-chan string
}

// Run dispatches feed events until ctx ends, Stop is called, or the
// membership stream closes. A closed membership stream means the registry
// connection is gone and is reported as ErrDisconnected.
//
// The participants list never starts links. Peers already in the room
// reach us as inbound attempts; we only originate on user-connected.
func (o *Orchestrator) Run(ctx context.Context, feed Feed) error {
	membership, participants := feed.Membership, feed.Participants
	chats, incoming, errs := feed.Chat, feed.Incoming, feed.Errors

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-o.done:
			return ErrStopped

		case ev, ok := <-membership:
			if !ok {
				o.emit(Event{Kind: EventError, Err: ErrDisconnected})
				return ErrDisconnected
			}
			if ev.Joined {
				o.PeerJoined(ev.Peer)
			} else {
				o.PeerLeft(ev.Peer.PeerID)
			}

		case list, ok := <-participants:
			if !ok {
				participants = nil
				continue
			}
			o.recordNames(list)
			o.emit(Event{Kind: EventParticipants, Participants: list})

		case p, ok := <-chats:
			if !ok {
				chats = nil
				continue
			}
			msg := o.chat.Append(p)
			o.emit(Event{Kind: EventChat, PeerID: p.OriginID, Chat: msg})

		case a, ok := <-incoming:
			if !ok {
				incoming = nil
				continue
			}
			o.Incoming(a)

		case text, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("registry error", "error", text)
			o.emit(Event{Kind: EventError, Err: errors.New(text)})
		}
	}
}

func (o *Orchestrator) recordNames(list []protocol.Participant) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range list {
		if p.PeerID == "" || p.DisplayName == "" {
			continue
		}
		o.names[p.PeerID] = p.DisplayName
		if e, ok := o.entries[p.PeerID]; ok && e.link != nil {
			e.link.DisplayName = p.DisplayName
		}
	}
}
