package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/protocol"
)

type chanSource chan *protocol.Message

func (s chanSource) Incoming() <-chan *protocol.Message { return s }

func TestHandlerRoutesMessages(t *testing.T) {
	src := make(chanSource, 16)
	h := NewHandler(src)

	src <- &protocol.Message{Type: protocol.TypeSessionReady, PeerID: "me"}
	src <- &protocol.Message{Type: protocol.TypeParticipantsList, Participants: []protocol.Participant{{PeerID: "a"}}}
	src <- &protocol.Message{Type: protocol.TypeUserConnected, PeerID: "b", DisplayName: "Bob"}
	src <- &protocol.Message{Type: protocol.TypeUserDisconnected, PeerID: "b", DisplayName: "Bob"}
	src <- &protocol.Message{Type: protocol.TypeChatMessage, Chat: &protocol.ChatPayload{Content: "hi"}}
	src <- &protocol.Message{Type: protocol.TypeSignal, Signal: &protocol.SignalPayload{CallID: "c"}}
	src <- &protocol.Message{Type: protocol.TypeError, Error: "nope"}
	src <- &protocol.Message{Type: "something-new"}
	close(src)

	h.Start()

	id, err := h.WaitIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", id)

	assert.Equal(t, []protocol.Participant{{PeerID: "a"}}, <-h.Participants)
	assert.Equal(t, MembershipEvent{Joined: true, Peer: protocol.Participant{PeerID: "b", DisplayName: "Bob"}}, <-h.Membership)
	assert.Equal(t, MembershipEvent{Joined: false, Peer: protocol.Participant{PeerID: "b", DisplayName: "Bob"}}, <-h.Membership)
	assert.Equal(t, "hi", (<-h.Chat).Content)
	assert.Equal(t, "c", (<-h.Signal).CallID)
	assert.Equal(t, "nope", <-h.Error)

	_, ok := <-h.Membership
	assert.False(t, ok, "channels close when the source ends")
	<-h.Done()
}

func TestWaitIdentityWithoutSessionReady(t *testing.T) {
	src := make(chanSource)
	h := NewHandler(src)
	close(src)
	h.Start()

	_, err := h.WaitIdentity(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestWaitIdentityHonorsContext(t *testing.T) {
	h := NewHandler(make(chanSource))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.WaitIdentity(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
