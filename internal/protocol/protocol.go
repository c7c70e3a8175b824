// Package protocol is the wire codec of the voice recognition socket.
//
// Outbound frames are either a control string or raw PCM. Inbound frames are
// JSON objects discriminated by "type"; they decode into a closed set of
// Message values.
package protocol

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Control is an outbound text command.
type Control string

const (
	ControlStart Control = "start"
	ControlStop  Control = "stop"
)

const (
	TypeStarted  = "started"
	TypeUnderway = "underway"
	TypeComplete = "complete"
	TypeError    = "error"
	TypeStopped  = "stopped"
)

// Message is an inbound frame. The set of implementations is closed.
type Message interface {
	Type() string
	message()
}

// Started: the backend is ready to receive audio.
type Started struct{}

// Underway: the backend heard the user begin an utterance.
type Underway struct{}

// Complete carries one recognized utterance. Empty Text means nothing usable
// was recognized.
type Complete struct {
	Text  string
	Chunk int
}

// Error is a fault reported by the backend; it does not end the call.
type Error struct {
	Message string
}

// Stopped acknowledges a "stop" control frame.
type Stopped struct{}

func (Started) Type() string  { return TypeStarted }
func (Underway) Type() string { return TypeUnderway }
func (Complete) Type() string { return TypeComplete }
func (Error) Type() string    { return TypeError }
func (Stopped) Type() string  { return TypeStopped }

func (Started) message()  {}
func (Underway) message() {}
func (Complete) message() {}
func (Error) message()    {}
func (Stopped) message()  {}

// DecodeError reports a frame that is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode frame: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownTypeError reports a well-formed frame with an unrecognized type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

type envelope struct {
	Type    string  `json:"type"`
	Text    *string `json:"text"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
	Chunk   int     `json:"chunk"`
}

// Decode parses one inbound text frame.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch strings.TrimSpace(env.Type) {
	case TypeStarted:
		return Started{}, nil
	case TypeUnderway:
		return Underway{}, nil
	case TypeComplete:
		c := Complete{Chunk: env.Chunk}
		if env.Text != nil {
			c.Text = *env.Text
		}
		return c, nil
	case TypeError:
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return Error{Message: msg}, nil
	case TypeStopped:
		return Stopped{}, nil
	case "":
		// The recognizer reports processing faults as {"error": "..."}.
		if env.Error != "" {
			return Error{Message: env.Error}, nil
		}
		return nil, &UnknownTypeError{Type: ""}
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

// Encode renders a message in its wire form. Used by test servers and tools.
func Encode(m Message) ([]byte, error) {
	env := map[string]any{"type": m.Type()}
	switch v := m.(type) {
	case Complete:
		env["text"] = v.Text
		env["complete"] = true
		env["chunk"] = v.Chunk
	case Error:
		env["message"] = v.Message
	}
	return json.Marshal(env)
}
