package core

import (
	"context"
	"errors"

	"github.com/dkeye/AvatarCall/internal/protocol"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw binary payload (16-bit PCM audio).
type Frame []byte

// VoiceConnection is the streaming socket of one call.
// Owned by the call session; the session must Close() it.
type VoiceConnection interface {
	SendControl(protocol.Control) error
	// TrySend queues an audio frame without blocking.
	TrySend(Frame) error
	IsOpen() bool
	Close()
}

// VoiceHandler receives inbound traffic. Calls come from the connection's
// read goroutine.
type VoiceHandler interface {
	OnMessage(protocol.Message)
	OnProtocolError(error)
	// OnClosed fires once when the peer closes or the socket fails. It does
	// not fire after a local Close.
	OnClosed(error)
}

type VoiceDialer interface {
	Dial(ctx context.Context, h VoiceHandler) (VoiceConnection, error)
}
