package protocol

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
//
// Only the fields relevant to a given Type are set; the rest are omitted
// from the wire.
type Message struct {
	Type         string         `json:"type" msgpack:"type"`
	RoomID       string         `json:"room_id,omitempty" msgpack:"room_id,omitempty"`
	PeerID       string         `json:"peer_id,omitempty" msgpack:"peer_id,omitempty"`
	DisplayName  string         `json:"display_name,omitempty" msgpack:"display_name,omitempty"`
	Participants []Participant  `json:"participants,omitempty" msgpack:"participants,omitempty"`
	Chat         *ChatPayload   `json:"chat,omitempty" msgpack:"chat,omitempty"`
	Signal       *SignalPayload `json:"signal,omitempty" msgpack:"signal,omitempty"`
	Error        string         `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Message type constants.
const (
	// Client -> server
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"

	// Server -> client
	TypeSessionReady     = "session-ready"
	TypeParticipantsList = "participants-list"
	TypeUserConnected    = "user-connected"
	TypeUserDisconnected = "user-disconnected"
	TypeError            = "error"

	// Both directions
	TypeChatMessage = "chat-message"
	TypeSignal      = "signal"
)

// Participant is the public view of a room member.
type Participant struct {
	PeerID      string `json:"peer_id" msgpack:"peer_id"`
	DisplayName string `json:"display_name" msgpack:"display_name"`
}

// Chat message kinds.
const (
	ChatKindUser   = "user"
	ChatKindSystem = "system"
)

// System author used for join/leave announcements.
const (
	SystemOrigin = "system"
	SystemAuthor = "System"
)

// ChatPayload is a chat line as relayed by the server. Clients only fill
// Content when sending; the server sets the rest.
type ChatPayload struct {
	Kind       string `json:"kind,omitempty" msgpack:"kind,omitempty"`
	Content    string `json:"content" msgpack:"content"`
	OriginID   string `json:"origin_id,omitempty" msgpack:"origin_id,omitempty"`
	AuthorName string `json:"author_name,omitempty" msgpack:"author_name,omitempty"`
}

// Signal types.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload carries SDP or ICE data for one call between two peers.
// From is always stamped by the server.
type SignalPayload struct {
	From      string     `json:"from,omitempty" msgpack:"from,omitempty"`
	To        string     `json:"to" msgpack:"to"`
	CallID    string     `json:"call_id" msgpack:"call_id"`
	Type      string     `json:"type" msgpack:"type"`
	SDP       string     `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
}

// Candidate mirrors an ICE candidate init without tying the wire format to
// a particular WebRTC implementation.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// NewError builds an error event.
func NewError(text string) *Message {
	return &Message{Type: TypeError, Error: text}
}

// NewSystemChat builds a system announcement for room.
func NewSystemChat(room, content string) *Message {
	return &Message{
		Type:   TypeChatMessage,
		RoomID: room,
		Chat: &ChatPayload{
			Kind:       ChatKindSystem,
			Content:    content,
			OriginID:   SystemOrigin,
			AuthorName: SystemAuthor,
		},
	}
}
