package call

import (
	"fmt"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
)

type CallState int

const (
	StateIdle CallState = iota
	StateStarting
	StateActive
	StateEnding
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

func (s CallState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TurnState is the speech-turn sub-state of an active call.
type TurnState int

const (
	TurnListening TurnState = iota
	TurnCapturing
	TurnDispatching
	TurnAwaitingReply
)

func (t TurnState) String() string {
	switch t {
	case TurnListening:
		return "listening"
	case TurnCapturing:
		return "capturing"
	case TurnDispatching:
		return "dispatching"
	case TurnAwaitingReply:
		return "awaiting_reply"
	}
	return fmt.Sprintf("TurnState(%d)", int(t))
}

func (t TurnState) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Snapshot is a read-only view of a call for other goroutines.
type Snapshot struct {
	Active         bool            `json:"active"`
	CallID         string          `json:"call_id,omitempty"`
	Kind           domain.CallKind `json:"kind"`
	State          CallState       `json:"state"`
	Turn           TurnState       `json:"turn"`
	ServerReady    bool            `json:"server_ready"`
	RemoteSpeaking bool            `json:"remote_speaking"`
	BufferedFrames int             `json:"buffered_frames"`
}

type Options struct {
	Audio        core.AudioConstraints
	SamplePeriod time.Duration
	JPEGQuality  int
	// EventBuffer is the capacity of a session's event queue.
	EventBuffer int
}

func DefaultOptions() Options {
	return Options{
		Audio:        core.DefaultAudioConstraints(),
		SamplePeriod: time.Second,
		JPEGQuality:  80,
		EventBuffer:  64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Audio.SampleRate == 0 {
		o.Audio = d.Audio
	}
	if o.SamplePeriod <= 0 {
		o.SamplePeriod = d.SamplePeriod
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = d.JPEGQuality
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}
	return o
}
