package chat

import (
	"sync"
	"time"

	"github.com/BioHazard786/huddle/internal/protocol"
)

// Message is a chat line as seen by this client.
type Message struct {
	Kind       string
	Text       string
	AuthorName string
	OriginID   string

	// Timestamp is when this client received the line. Clocks of other
	// participants are never consulted.
	Timestamp time.Time
}

// System reports whether the line is a join/leave announcement.
func (m Message) System() bool {
	return m.Kind == protocol.ChatKindSystem
}

// Log is the append-only chat history of one session.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

// NewLog creates an empty log stamped with the wall clock.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records a relayed chat payload and returns the stored line.
func (l *Log) Append(p protocol.ChatPayload) Message {
	kind := p.Kind
	if kind == "" {
		kind = protocol.ChatKindUser
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m := Message{
		Kind:       kind,
		Text:       p.Content,
		AuthorName: p.AuthorName,
		OriginID:   p.OriginID,
		Timestamp:  l.now(),
	}
	l.messages = append(l.messages, m)
	return m
}

// Messages returns a copy of the history in arrival order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.messages...)
}

// Len is the number of stored lines.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
