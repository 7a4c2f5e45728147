package messages

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const ProtocolVersion = "1"

var (
	ErrMessageInvalid     = errors.New("message was invalid")
	ErrUnknownMessageType = errors.New("unknown message type")
)

type Type int

const (
	StateMsgType Type = iota
	RollRequestType
)

func (t Type) String() string {
	switch t {
	case StateMsgType:
		return "state"
	case RollRequestType:
		return "roll_request"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Message is the envelope for every frame, encoded as [type, version, payload].
type Message struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused
	Type     Type     `msgpack:"type"`
	Version  string   `msgpack:"version"`
	Payload  any
}

func NewRollRequest(req RollRequest) Message {
	return Message{Type: RollRequestType, Version: ProtocolVersion, Payload: req}
}

func NewState(state RoomState) Message {
	return Message{Type: StateMsgType, Version: ProtocolVersion, Payload: state}
}

func (m *Message) UnmarshalMsgpack(b []byte) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(b))
	l, err := decoder.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != 3 {
		return fmt.Errorf("%w: envelope has %d fields", ErrMessageInvalid, l)
	}
	t, err := decoder.DecodeInt()
	if err != nil {
		return err
	}
	m.Type = Type(t)

	if m.Version, err = decoder.DecodeString(); err != nil {
		return err
	}

	switch m.Type {
	case StateMsgType:
		var room RoomState
		if err = decoder.Decode(&room); err != nil {
			return err
		}
		m.Payload = room
	case RollRequestType:
		var roll RollRequest
		if err = decoder.Decode(&roll); err != nil {
			return err
		}
		m.Payload = roll
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	return nil
}

// RoomState is pushed to every session whenever the room changes.
type RoomState struct {
	Version int         `msgpack:"version"`
	Name    string      `msgpack:"name"`
	Dice    string      `msgpack:"default_roll"`
	Replies []RollReply `msgpack:"replies"`
}

// RollRequest is a chat line sent by a user. An empty Expression rolls the
// room's default dice.
type RollRequest struct {
	User       string `msgpack:"user"`
	Expression string `msgpack:"expression"`
	IsBot      bool   `msgpack:"is_bot"`
}

// RollReply is the rendered answer to a request that was a dice expression.
type RollReply struct {
	User       string `msgpack:"user"`
	Expression string `msgpack:"expression"`
	Text       string `msgpack:"text"`
	Total      int    `msgpack:"total"`
}
