package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/protocol"
)

func drain(c *Client) []*protocol.Message {
	var out []*protocol.Message
	for {
		select {
		case m := <-c.Send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func ofType(msgs []*protocol.Message, typ string) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func join(t *testing.T, r *Registry, room, peer, name string) *Client {
	t.Helper()
	c := r.NewClient(nil, nil)
	require.NoError(t, r.Join(c, room, peer, name))
	return c
}

func TestRegisterProposesIdentity(t *testing.T) {
	r := New(nil)
	c := r.NewClient(nil, nil)
	r.Register(c)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeSessionReady, msgs[0].Type)
	assert.Equal(t, c.PeerID, msgs[0].PeerID)
	assert.NotEmpty(t, c.PeerID)
}

func TestJoinRepliesWithOtherMembers(t *testing.T) {
	r := New(nil)

	a := join(t, r, "room", "peer-a", "Ann")
	first := ofType(drain(a), protocol.TypeParticipantsList)
	require.Len(t, first, 1)
	assert.Empty(t, first[0].Participants)

	b := join(t, r, "room", "peer-b", "Bob")
	list := ofType(drain(b), protocol.TypeParticipantsList)
	require.Len(t, list, 1)
	assert.Equal(t, []protocol.Participant{{PeerID: "peer-a", DisplayName: "Ann"}}, list[0].Participants)
}

func TestJoinFanOutReachesEveryOtherMember(t *testing.T) {
	r := New(nil)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	drain(a)
	drain(b)

	c := join(t, r, "room", "peer-c", "Cat")

	for _, member := range []*Client{a, b} {
		msgs := drain(member)
		connected := ofType(msgs, protocol.TypeUserConnected)
		require.Len(t, connected, 1)
		assert.Equal(t, "peer-c", connected[0].PeerID)
		assert.Equal(t, "Cat", connected[0].DisplayName)

		chats := ofType(msgs, protocol.TypeChatMessage)
		require.Len(t, chats, 1)
		assert.Equal(t, protocol.ChatKindSystem, chats[0].Chat.Kind)
		assert.Equal(t, "Cat joined the meeting", chats[0].Chat.Content)
	}

	assert.Empty(t, ofType(drain(c), protocol.TypeUserConnected), "joiner must not be told about itself")
}

func TestChatReachesWholeRoomIncludingSender(t *testing.T) {
	r := New(nil)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	drain(a)
	drain(b)

	require.NoError(t, r.Chat(b, "room", "hi", "Bob"))

	for _, member := range []*Client{a, b} {
		chats := ofType(drain(member), protocol.TypeChatMessage)
		require.Len(t, chats, 1)
		assert.Equal(t, &protocol.ChatPayload{
			Kind:       protocol.ChatKindUser,
			Content:    "hi",
			OriginID:   "peer-b",
			AuthorName: "Bob",
		}, chats[0].Chat)
	}
}

func TestChatStaysInsideRoom(t *testing.T) {
	r := New(nil)

	a := join(t, r, "red", "peer-a", "Ann")
	b := join(t, r, "blue", "peer-b", "Bob")
	drain(a)
	drain(b)

	require.NoError(t, r.Chat(a, "red", "only red", ""))

	assert.Len(t, ofType(drain(a), protocol.TypeChatMessage), 1)
	assert.Empty(t, drain(b))

	assert.ErrorIs(t, r.Chat(a, "blue", "sneak", ""), ErrNotInRoom)
	assert.Empty(t, drain(b))
}

func TestChatFallsBackToRegisteredName(t *testing.T) {
	r := New(nil)
	a := join(t, r, "room", "peer-a", "Ann")
	drain(a)

	require.NoError(t, r.Chat(a, "", "hello", ""))
	chats := ofType(drain(a), protocol.TypeChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, "Ann", chats[0].Chat.AuthorName)

	assert.ErrorIs(t, r.Chat(a, "room", "   ", ""), ErrEmptyMessage)
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	r := New(nil)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	drain(a)
	drain(b)

	r.Unregister(b)

	msgs := drain(a)
	gone := ofType(msgs, protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)
	assert.Equal(t, "peer-b", gone[0].PeerID)

	chats := ofType(msgs, protocol.TypeChatMessage)
	require.Len(t, chats, 1)
	assert.Equal(t, "Bob left the meeting", chats[0].Chat.Content)

	// The identity is free again.
	join(t, r, "room", "peer-b", "Bob again")
}

func TestUnregisterIsIdempotent(t *testing.T) {
	m := NewMetrics(nil)
	r := New(m)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	r.Register(a)
	r.Register(b)
	drain(a)

	r.Unregister(b)
	r.Unregister(b)

	assert.Len(t, ofType(drain(a), protocol.TypeUserDisconnected), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Connections))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Participants))
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	r := New(nil)
	a := join(t, r, "room", "peer-a", "Ann")
	drain(a)

	stranger := r.NewClient(nil, nil)
	r.Leave(stranger)

	assert.Empty(t, drain(a))
}

func TestEmptyRoomIsReclaimed(t *testing.T) {
	m := NewMetrics(nil)
	r := New(m)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	require.Len(t, r.Rooms(), 1)

	r.Leave(a)
	r.Leave(b)

	assert.Empty(t, r.Rooms())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Rooms))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Participants))

	// A later join starts a fresh room.
	c := join(t, r, "room", "peer-c", "Cat")
	list := ofType(drain(c), protocol.TypeParticipantsList)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Participants)
}

func TestJoinValidation(t *testing.T) {
	r := New(nil)
	c := r.NewClient(nil, nil)

	assert.ErrorIs(t, r.Join(c, " ", "peer", "x"), ErrEmptyRoom)
	assert.ErrorIs(t, r.Join(c, "room", "", "x"), ErrEmptyIdentity)
	assert.Empty(t, r.Rooms())
}

func TestIdentityCollisionIsRejected(t *testing.T) {
	r := New(nil)
	a := join(t, r, "room", "same", "Ann")
	drain(a)

	intruder := r.NewClient(nil, nil)
	assert.ErrorIs(t, r.Join(intruder, "other", "same", "Eve"), ErrIdentityInUse)

	assert.Empty(t, drain(a))
	rooms := r.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "room", rooms[0].ID)
}

func TestSecondJoinMovesConnection(t *testing.T) {
	r := New(nil)

	a := join(t, r, "red", "peer-a", "Ann")
	b := join(t, r, "red", "peer-b", "Bob")
	drain(a)
	drain(b)

	require.NoError(t, r.Join(b, "blue", "peer-b", "Bob"))

	gone := ofType(drain(a), protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)
	assert.Equal(t, "peer-b", gone[0].PeerID)

	rooms := r.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "blue", rooms[0].ID)
	assert.Equal(t, []protocol.Participant{{PeerID: "peer-b", DisplayName: "Bob"}}, rooms[0].Participants)
	assert.Equal(t, "red", rooms[1].ID)
	assert.Len(t, rooms[1].Participants, 1)
}

func TestRelayStampsSender(t *testing.T) {
	r := New(nil)

	a := join(t, r, "room", "peer-a", "Ann")
	b := join(t, r, "room", "peer-b", "Bob")
	drain(a)
	drain(b)

	err := r.Relay(a, &protocol.SignalPayload{From: "forged", To: "peer-b", CallID: "c1", Type: protocol.SignalOffer, SDP: "v=0"})
	require.NoError(t, err)

	signals := ofType(drain(b), protocol.TypeSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, "peer-a", signals[0].Signal.From)
	assert.Equal(t, "v=0", signals[0].Signal.SDP)
	assert.Empty(t, drain(a))

	assert.ErrorIs(t, r.Relay(a, &protocol.SignalPayload{To: "nobody", CallID: "c2"}), ErrUnknownPeer)
	assert.ErrorIs(t, r.Relay(a, &protocol.SignalPayload{To: "peer-b"}), ErrInvalidSignal)
}

func TestRelayDoesNotCrossRooms(t *testing.T) {
	r := New(nil)
	a := join(t, r, "red", "peer-a", "Ann")
	b := join(t, r, "blue", "peer-b", "Bob")
	drain(b)

	err := r.Relay(a, &protocol.SignalPayload{To: "peer-b", CallID: "c1", Type: protocol.SignalOffer})
	assert.ErrorIs(t, err, ErrUnknownPeer)
	assert.Empty(t, drain(b))
}

func TestHandleReportsErrors(t *testing.T) {
	m := NewMetrics(nil)
	r := New(m)
	c := r.NewClient(nil, nil)

	r.Handle(c, &protocol.Message{Type: "bogus"})
	r.Handle(c, &protocol.Message{Type: protocol.TypeChatMessage, RoomID: "room", Chat: &protocol.ChatPayload{Content: "hi"}})

	errs := ofType(drain(c), protocol.TypeError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error, "bogus")
	assert.Equal(t, ErrNotInRoom.Error(), errs[1].Error)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues("unknown")))
}

func TestFullQueueEvictsSlowMember(t *testing.T) {
	m := NewMetrics(nil)
	r := New(m)

	slow := join(t, r, "room", "slow", "Slow")
	other := join(t, r, "room", "other", "Other")
	drain(slow)
	drain(other)

	// Fill slow's queue while other keeps reading.
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, r.Chat(other, "room", fmt.Sprintf("msg %d", i), ""))
		drain(other)
	}
	require.Len(t, slow.Send, sendBuffer)

	// The membership change that does not fit must not be lost silently.
	join(t, r, "room", "late", "Late")

	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow member was not evicted")
	}

	require.Eventually(t, func() bool {
		rooms := r.Rooms()
		return len(rooms) == 1 && len(rooms[0].Participants) == 2
	}, 2*time.Second, 10*time.Millisecond)

	left := ofType(drain(other), protocol.TypeUserDisconnected)
	require.Len(t, left, 1)
	assert.Equal(t, "slow", left[0].PeerID)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Evicted))
	assert.Greater(t, testutil.ToFloat64(m.Dropped), float64(0))

	// The identity is released with the connection.
	join(t, r, "room", "slow", "Slow again")
}

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := r.NewClient(nil, nil)
			room := fmt.Sprintf("room-%d", i%3)
			if err := r.Join(c, room, fmt.Sprintf("peer-%d", i), ""); err != nil {
				t.Error(err)
				return
			}
			r.Unregister(c)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, r.Rooms())
}
