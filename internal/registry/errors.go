package registry

import "errors"

var (
	ErrEmptyRoom      = errors.New("room id is required")
	ErrEmptyIdentity  = errors.New("peer identity is required")
	ErrIdentityInUse  = errors.New("peer identity already in use")
	ErrNotInRoom      = errors.New("not a member of this room")
	ErrEmptyMessage   = errors.New("chat message is empty")
	ErrInvalidSignal  = errors.New("invalid signal payload")
	ErrUnknownPeer    = errors.New("peer not found in room")
	ErrUnknownMessage = errors.New("unknown message type")
)
