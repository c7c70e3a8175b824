// Package domain contains entity without logic, just meta-data
package domain

import "fmt"

// InputMode is the single process-wide input mode.
type InputMode int

const (
	ModeIdle InputMode = iota
	ModePushToTalk
	ModeVoiceCall
	ModeVideoCall
)

func (m InputMode) String() string {
	switch m {
	case ModeIdle:
		return "none"
	case ModePushToTalk:
		return "pushToTalk"
	case ModeVoiceCall:
		return "voiceCall"
	case ModeVideoCall:
		return "videoCall"
	default:
		return fmt.Sprintf("InputMode(%d)", int(m))
	}
}

// IsCall reports whether m is one of the call modes.
func (m InputMode) IsCall() bool {
	return m == ModeVoiceCall || m == ModeVideoCall
}

func (m InputMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type CallKind int

const (
	CallVoice CallKind = iota
	CallVideo
)

func (k CallKind) String() string {
	if k == CallVideo {
		return "video"
	}
	return "voice"
}

func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Mode returns the input mode a call of this kind runs under.
func (k CallKind) Mode() InputMode {
	if k == CallVideo {
		return ModeVideoCall
	}
	return ModeVoiceCall
}

func ParseCallKind(s string) (CallKind, error) {
	switch s {
	case "voice":
		return CallVoice, nil
	case "video":
		return CallVideo, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCallKind, s)
}

// ConnStatus is the playback connection indicator.
type ConnStatus string

const (
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusDisconnected ConnStatus = "disconnected"
)
