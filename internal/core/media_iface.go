package core

import (
	"context"
	"image"
)

// AudioConstraints are the fixed capture parameters of a call.
type AudioConstraints struct {
	SampleRate       int
	Channels         int
	BufferSize       int
	EchoCancellation bool
	NoiseSuppression bool
}

func DefaultAudioConstraints() AudioConstraints {
	return AudioConstraints{
		SampleRate:       16000,
		Channels:         1,
		BufferSize:       2048,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

type Constraints struct {
	Audio AudioConstraints
	Video bool
}

// AudioGraph delivers successive fixed-size mono chunks of float samples in
// [-1, 1], one chunk per receive. The channel is closed once the graph is
// released or the source ends.
type AudioGraph interface {
	Chunks() <-chan []float32
	// Close disconnects the graph. Safe to call more than once.
	Close() error
}

// FrameSource exposes the local camera as still images.
type FrameSource interface {
	// Ready reports whether a frame is available to sample.
	Ready() bool
	Snapshot() (image.Image, error)
}

// MediaStream owns the acquired device tracks.
type MediaStream interface {
	Audio() AudioGraph
	// Video is nil unless video was requested.
	Video() FrameSource
	// Stop stops every device track. Safe to call more than once.
	Stop()
}

// MediaDevices acquires microphone and camera.
type MediaDevices interface {
	Acquire(ctx context.Context, c Constraints) (MediaStream, error)
}
