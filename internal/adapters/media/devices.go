// Package media acquires the local microphone and camera for a call.
package media

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoBackend = errors.New("no capture backend configured")

// AudioOpener opens one audio graph with the given constraints.
type AudioOpener func(ctx context.Context, c core.AudioConstraints) (core.AudioGraph, error)

// FrameOpener opens the camera.
type FrameOpener func(ctx context.Context) (core.FrameSource, error)

// Devices implements core.MediaDevices over pluggable backends.
type Devices struct {
	Audio AudioOpener
	Video FrameOpener
}

func (d *Devices) Acquire(ctx context.Context, c core.Constraints) (core.MediaStream, error) {
	if d.Audio == nil {
		return nil, &domain.AcquisitionError{Device: "microphone", Err: ErrNoBackend}
	}
	graph, err := d.Audio(ctx, c.Audio)
	if err != nil {
		return nil, &domain.AcquisitionError{Device: "microphone", Err: err}
	}
	s := &Stream{audio: graph}

	if c.Video {
		if d.Video == nil {
			s.Stop()
			return nil, &domain.AcquisitionError{Device: "camera", Err: ErrNoBackend}
		}
		src, err := d.Video(ctx)
		if err != nil {
			s.Stop()
			return nil, &domain.AcquisitionError{Device: "camera", Err: err}
		}
		s.video = src
	}
	log.Info().Str("module", "media").Bool("video", c.Video).Int("rate", c.Audio.SampleRate).Msg("devices acquired")
	return s, nil
}

// Stream owns the acquired tracks.
type Stream struct {
	audio core.AudioGraph
	video core.FrameSource
	once  sync.Once
}

func (s *Stream) Audio() core.AudioGraph { return s.audio }

func (s *Stream) Video() core.FrameSource { return s.video }

// Stop releases every track. Frame sources that hold resources implement
// io.Closer.
func (s *Stream) Stop() {
	s.once.Do(func() {
		if s.audio != nil {
			if err := s.audio.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("close audio")
			}
		}
		if c, ok := s.video.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("close camera")
			}
		}
		log.Info().Str("module", "media").Msg("tracks stopped")
	})
}
