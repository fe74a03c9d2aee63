package ws

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/kbukum/nitai/errors"
)

// MessageType is the frame opcode of a Message.
type MessageType int

// Message types, matching the WebSocket opcodes.
const (
	TypeText   = MessageType(websocket.TextMessage)
	TypeBinary = MessageType(websocket.BinaryMessage)
	TypeClose  = MessageType(websocket.CloseMessage)
	TypePing   = MessageType(websocket.PingMessage)
	TypePong   = MessageType(websocket.PongMessage)
)

func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeBinary:
		return "binary"
	case TypeClose:
		return "close"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	}
	return "unknown"
}

// Message is one frame sent or received on a Session.
type Message struct {
	Type MessageType
	Data []byte
	// Code and Reason are set on close frames.
	Code   int
	Reason string
}

// NewText returns a text message.
func NewText(s string) Message { return Message{Type: TypeText, Data: []byte(s)} }

// NewBinary returns a binary message.
func NewBinary(b []byte) Message { return Message{Type: TypeBinary, Data: b} }

// NewJSON encodes v as a text message.
func NewJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, errors.InvalidArgument("json", err.Error())
	}
	return Message{Type: TypeText, Data: data}, nil
}

// NewJSONBinary encodes v as a binary message.
func NewJSONBinary(v any) (Message, error) {
	m, err := NewJSON(v)
	m.Type = TypeBinary
	return m, err
}

// NewPing returns a ping carrying payload.
func NewPing(payload []byte) Message { return Message{Type: TypePing, Data: payload} }

// NewPong returns a pong carrying payload.
func NewPong(payload []byte) Message { return Message{Type: TypePong, Data: payload} }

// NewClose returns a close frame. Code zero means 1000.
func NewClose(code int, reason string) Message {
	return Message{Type: TypeClose, Code: code, Reason: reason}
}

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.Data) }

// JSON decodes the payload into v.
func (m Message) JSON(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.Decode("json", err)
	}
	return nil
}

// validateClose checks a close code and reason before they go on the wire.
func validateClose(code int, reason string) error {
	switch {
	case code == websocket.CloseNormalClosure,
		code >= websocket.CloseGoingAway && code <= websocket.CloseUnsupportedData,
		code >= websocket.CloseInvalidFramePayloadData && code <= websocket.CloseTryAgainLater,
		code >= 3000 && code <= 4999:
	default:
		return errors.InvalidArgument("code", "invalid close code")
	}
	if len(reason) > 123 {
		return errors.InvalidArgument("reason", "must be at most 123 bytes")
	}
	return nil
}
