package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownCodec is returned by Lookup for names it does not know.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec names accepted in the ?codec= query parameter.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec encodes messages for one websocket connection. Binary reports
// whether frames must be sent as binary rather than text.
type Codec interface {
	Name() string
	Binary() bool
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}

// JSON is the default codec.
var JSON Codec = jsonCodec{}

// Msgpack is the compact binary codec.
var Msgpack Codec = msgpackCodec{}

// Lookup returns the codec registered under name. An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
