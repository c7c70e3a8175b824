//go:build !portaudio

package media

import (
	"context"
	"errors"

	"github.com/dkeye/AvatarCall/internal/core"
)

const PortAudioAvailable = false

var errNoPortAudio = errors.New("built without portaudio (rebuild with -tags portaudio)")

func PortAudio() AudioOpener {
	return func(context.Context, core.AudioConstraints) (core.AudioGraph, error) {
		return nil, errNoPortAudio
	}
}
