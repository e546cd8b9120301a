package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/huddle/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP offers

	// Outbound queue depth per connection.
	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is the server-assigned connection id.
	ID string

	// PeerID is the identity proposed to the client in session-ready.
	// The client may join with it or with one of its own.
	PeerID string

	// Registry is the registry that manages this client.
	Registry *Registry

	// Conn is the websocket connection. Nil for in-process clients.
	Conn *websocket.Conn

	// Codec encodes frames for this connection.
	Codec protocol.Codec

	// Send is a buffered channel for all outbound messages.
	// Fan-out writes to it without blocking, and WritePump drains it.
	Send chan *protocol.Message

	// done is closed when the connection is unregistered.
	done       chan struct{}
	closeOnce  sync.Once
	unregister sync.Once

	// evicting is set once a full send queue has scheduled removal.
	evicting atomic.Bool

	mu          sync.Mutex
	room        *Room
	participant *Participant
}

// NewClient creates a client bound to r. conn may be nil when the caller
// drains Send itself.
func (r *Registry) NewClient(conn *websocket.Conn, codec protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	return &Client{
		ID:       uuid.NewString(),
		PeerID:   uuid.NewString(),
		Registry: r,
		Conn:     conn,
		Codec:    codec,
		Send:     make(chan *protocol.Message, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver enqueues msg without blocking. A client whose queue is full has
// fallen behind the room and is evicted: it is unregistered, which sends
// user-disconnected to the others, and its connection is closed.
func (c *Client) deliver(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.Registry.metrics.Dropped.Inc()
		c.evict(msg.Type)
		return false
	}
}

// evict unregisters the client from a fresh goroutine. deliver runs under a
// room lock and Unregister takes it again.
func (c *Client) evict(reason string) {
	if !c.evicting.CompareAndSwap(false, true) {
		return
	}
	c.Registry.metrics.Evicted.Inc()
	slog.Warn("send queue full, evicting connection", "conn", c.ID, "type", reason)
	go c.Registry.Unregister(c)
}

func (c *Client) membership() (*Room, *Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.participant
}

func (c *Client) setMembership(room *Room, p *Participant) {
	c.mu.Lock()
	c.room = room
	c.participant = p
	c.mu.Unlock()
}

// takeMembership clears and returns the current membership.
func (c *Client) takeMembership() (*Room, *Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, p := c.room, c.participant
	c.room, c.participant = nil, nil
	return room, p
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump pumps messages from the websocket connection to the registry.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine. Messages from one connection are therefore
// handled in the order they were sent.
func (c *Client) ReadPump() {
	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.Registry.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "conn", c.ID, "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.Codec.Unmarshal(data, &msg); err != nil {
			c.deliver(protocol.NewError("malformed message"))
			continue
		}

		c.Registry.Handle(c, &msg)
	}
}

// WritePump pumps messages from the registry to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.Codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case msg := <-c.Send:
			data, err := c.Codec.Marshal(msg)
			if err != nil {
				slog.Error("encode message", "conn", c.ID, "type", msg.Type, "error", err)
				continue
			}

			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(frameType, data); err != nil {
				slog.Debug("websocket write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
