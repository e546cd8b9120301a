package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		binary bool
	}{
		{name: "", want: CodecJSON},
		{name: "json", want: CodecJSON},
		{name: "msgpack", want: CodecMsgpack, binary: true},
	}

	for _, tt := range tests {
		t.Run("codec "+tt.want, func(t *testing.T) {
			c, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
			assert.Equal(t, tt.binary, c.Binary())
		})
	}

	_, err := Lookup("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestCodecsCarrySignal(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	msg := &Message{
		Type: TypeSignal,
		Signal: &SignalPayload{
			From:   "a",
			To:     "b",
			CallID: "call-1",
			Type:   SignalCandidate,
			Candidate: &Candidate{
				Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host",
				SDPMid:        &mid,
				SDPMLineIndex: &idx,
			},
		},
	}

	for _, c := range []Codec{JSON, Msgpack} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(msg)
			require.NoError(t, err)

			var got Message
			require.NoError(t, c.Unmarshal(data, &got))
			assert.Equal(t, msg, &got)
		})
	}
}

func TestJSONOmitsUnusedFields(t *testing.T) {
	data, err := JSON.Marshal(&Message{Type: TypeUserConnected, PeerID: "p1", DisplayName: "Ann"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user-connected","peer_id":"p1","display_name":"Ann"}`, string(data))
}

func TestNewSystemChat(t *testing.T) {
	msg := NewSystemChat("room-1", "Ann joined the meeting")

	assert.Equal(t, TypeChatMessage, msg.Type)
	require.NotNil(t, msg.Chat)
	assert.Equal(t, ChatKindSystem, msg.Chat.Kind)
	assert.Equal(t, SystemOrigin, msg.Chat.OriginID)
	assert.Equal(t, SystemAuthor, msg.Chat.AuthorName)
}
