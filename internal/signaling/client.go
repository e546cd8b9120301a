package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/huddle/internal/dns"
	"github.com/BioHazard786/huddle/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the room registry.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string, codec protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		incoming:  make(chan *protocol.Message, 64),
		outgoing:  make(chan *protocol.Message, 64),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	// Resolve through our DNS fallback rather than the system resolver alone
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Debug("signaling read ended", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			slog.Warn("dropping malformed message", "error", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				slog.Error("encode message", "type", message.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues a message for the server.
func (c *Client) SendMessage(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Join asks the registry to add us to room.
func (c *Client) Join(room, peerID, displayName string) error {
	return c.SendMessage(&protocol.Message{
		Type:        protocol.TypeJoinRoom,
		RoomID:      room,
		PeerID:      peerID,
		DisplayName: displayName,
	})
}

// Leave exits the current room without closing the connection.
func (c *Client) Leave() error {
	return c.SendMessage(&protocol.Message{Type: protocol.TypeLeaveRoom})
}

// Chat sends a chat line to room.
func (c *Client) Chat(room, text, displayName string) error {
	return c.SendMessage(&protocol.Message{
		Type:        protocol.TypeChatMessage,
		RoomID:      room,
		DisplayName: displayName,
		Chat:        &protocol.ChatPayload{Content: text},
	})
}

// SendSignal relays negotiation data to another participant.
func (c *Client) SendSignal(sig *protocol.SignalPayload) error {
	return c.SendMessage(&protocol.Message{Type: protocol.TypeSignal, Signal: sig})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
// Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
