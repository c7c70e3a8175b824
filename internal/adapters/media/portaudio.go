//go:build portaudio

package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// PortAudioAvailable reports whether this binary can open a real microphone.
const PortAudioAvailable = true

// PortAudio opens the default input device. Echo cancellation and noise
// suppression are left to the OS audio stack.
func PortAudio() AudioOpener {
	return func(ctx context.Context, c core.AudioConstraints) (core.AudioGraph, error) {
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize portaudio: %w", err)
		}
		in := make([]float32, c.BufferSize*c.Channels)
		stream, err := portaudio.OpenDefaultStream(c.Channels, 0, float64(c.SampleRate), c.BufferSize, in)
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("open input stream: %w", err)
		}
		if err := stream.Start(); err != nil {
			stream.Close()
			portaudio.Terminate()
			return nil, fmt.Errorf("start input stream: %w", err)
		}

		g := &paGraph{
			stream: stream,
			in:     in,
			out:    make(chan []float32, 8),
			quit:   make(chan struct{}),
		}
		g.wg.Add(1)
		go g.captureLoop()
		log.Info().Str("module", "media.portaudio").Int("rate", c.SampleRate).Int("frames", c.BufferSize).Msg("microphone opened")
		return g, nil
	}
}

type paGraph struct {
	stream *portaudio.Stream
	in     []float32
	out    chan []float32
	quit   chan struct{}

	once sync.Once
	wg   sync.WaitGroup
}

func (g *paGraph) Chunks() <-chan []float32 { return g.out }

func (g *paGraph) captureLoop() {
	defer g.wg.Done()
	c := &capture{read: g.stream.Read, in: g.in, out: g.out, quit: g.quit}
	c.run()
}

func (g *paGraph) Close() error {
	var err error
	g.once.Do(func() {
		close(g.quit)
		if e := g.stream.Stop(); e != nil {
			err = e
		}
		g.wg.Wait()
		if e := g.stream.Close(); e != nil && err == nil {
			err = e
		}
		portaudio.Terminate()
		log.Info().Str("module", "media.portaudio").Msg("microphone closed")
	})
	return err
}
