package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/huddle/internal/protocol"
	"github.com/BioHazard786/huddle/internal/registry"
)

type wsPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
	id    string
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	promReg := prometheus.NewRegistry()
	reg := registry.New(registry.NewMetrics(promReg))
	srv := httptest.NewServer(NewRouter(reg, Options{Gatherer: promReg}))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, codec protocol.Codec) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=" + codec.Name()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &wsPeer{t: t, conn: conn, codec: codec}
	ready := p.expect(protocol.TypeSessionReady)
	p.id = ready.PeerID
	require.NotEmpty(t, p.id)
	return p
}

func (p *wsPeer) send(msg *protocol.Message) {
	p.t.Helper()
	data, err := p.codec.Marshal(msg)
	require.NoError(p.t, err)
	frame := websocket.TextMessage
	if p.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	require.NoError(p.t, p.conn.WriteMessage(frame, data))
}

// expect reads until a message of typ arrives, skipping everything else.
func (p *wsPeer) expect(typ string) *protocol.Message {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := p.conn.ReadMessage()
		require.NoError(p.t, err, "waiting for %s", typ)

		var msg protocol.Message
		require.NoError(p.t, p.codec.Unmarshal(data, &msg))
		if msg.Type == typ {
			return &msg
		}
	}
}

func (p *wsPeer) join(room, name string) *protocol.Message {
	p.t.Helper()
	p.send(&protocol.Message{Type: protocol.TypeJoinRoom, RoomID: room, PeerID: p.id, DisplayName: name})
	return p.expect(protocol.TypeParticipantsList)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownCodecIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisconnectScenario(t *testing.T) {
	srv, _ := newTestServer(t)

	a := dial(t, srv, protocol.JSON)
	list := a.join("room", "A")
	assert.Empty(t, list.Participants)

	b := dial(t, srv, protocol.Msgpack)
	list = b.join("room", "B")
	require.Len(t, list.Participants, 1)
	assert.Equal(t, a.id, list.Participants[0].PeerID)

	connected := a.expect(protocol.TypeUserConnected)
	assert.Equal(t, b.id, connected.PeerID)
	assert.Equal(t, "B", connected.DisplayName)

	// Existing member originates; the registry relays to the arrival.
	a.send(&protocol.Message{Type: protocol.TypeSignal, Signal: &protocol.SignalPayload{
		To: b.id, CallID: "call-1", Type: protocol.SignalOffer, SDP: "v=0",
	}})
	offer := b.expect(protocol.TypeSignal)
	assert.Equal(t, a.id, offer.Signal.From)
	assert.Equal(t, "call-1", offer.Signal.CallID)

	require.NoError(t, b.conn.Close())

	gone := a.expect(protocol.TypeUserDisconnected)
	assert.Equal(t, b.id, gone.PeerID)
}

func TestChatScenario(t *testing.T) {
	srv, _ := newTestServer(t)

	a := dial(t, srv, protocol.JSON)
	b := dial(t, srv, protocol.JSON)
	c := dial(t, srv, protocol.Msgpack)
	a.join("room", "A")
	b.join("room", "B")
	c.join("room", "C")

	c.send(&protocol.Message{
		Type:        protocol.TypeChatMessage,
		RoomID:      "room",
		DisplayName: "C",
		Chat:        &protocol.ChatPayload{Content: "hi"},
	})

	for _, p := range []*wsPeer{a, b, c} {
		for {
			msg := p.expect(protocol.TypeChatMessage)
			if msg.Chat.Kind == protocol.ChatKindSystem {
				continue
			}
			assert.Equal(t, "hi", msg.Chat.Content)
			assert.Equal(t, "C", msg.Chat.AuthorName)
			assert.Equal(t, c.id, msg.Chat.OriginID)
			break
		}
	}
}

func TestJoinErrorsAreReported(t *testing.T) {
	srv, _ := newTestServer(t)

	a := dial(t, srv, protocol.JSON)
	a.join("room", "A")

	b := dial(t, srv, protocol.JSON)
	b.send(&protocol.Message{Type: protocol.TypeJoinRoom, RoomID: "room", PeerID: a.id, DisplayName: "B"})

	errMsg := b.expect(protocol.TypeError)
	assert.Equal(t, registry.ErrIdentityInUse.Error(), errMsg.Error)
}

func TestRoomsAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	a := dial(t, srv, protocol.JSON)
	a.join("standup", "A")

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var rooms []registry.RoomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "standup", rooms[0].ID)
	assert.Equal(t, []protocol.Participant{{PeerID: a.id, DisplayName: "A"}}, rooms[0].Participants)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "huddle_rooms_active 1")
}

func TestCheckOrigin(t *testing.T) {
	up := newUpgrader([]string{"https://meet.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, up.CheckOrigin(req), "no Origin header")

	req.Header.Set("Origin", "https://meet.example.com")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))

	assert.True(t, newUpgrader(nil).CheckOrigin(req))
}
