package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/pcm"
	"github.com/rs/zerolog/log"
)

// FileAudio plays a raw s16le mono file as if it were a microphone, paced
// at the constraint sample rate. After EOF it produces silence.
func FileAudio(path string) AudioOpener {
	return func(ctx context.Context, c core.AudioConstraints) (core.AudioGraph, error) {
		if c.SampleRate <= 0 || c.BufferSize <= 0 {
			c = core.DefaultAudioConstraints()
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		period := time.Duration(c.BufferSize) * time.Second / time.Duration(c.SampleRate)
		g := newReaderGraph(f, c.BufferSize, period)
		go g.run()
		return g, nil
	}
}

// readerGraph turns a byte stream into paced float chunks.
type readerGraph struct {
	src    io.ReadCloser
	size   int
	period time.Duration
	tick   func(d time.Duration) (<-chan time.Time, func())

	out  chan []float32
	quit chan struct{}
	once sync.Once
}

func newReaderGraph(src io.ReadCloser, size int, period time.Duration) *readerGraph {
	return &readerGraph{
		src:    src,
		size:   size,
		period: period,
		tick: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		out:  make(chan []float32, 4),
		quit: make(chan struct{}),
	}
}

func (g *readerGraph) Chunks() <-chan []float32 { return g.out }

func (g *readerGraph) Close() error {
	var err error
	g.once.Do(func() {
		close(g.quit)
		err = g.src.Close()
	})
	return err
}

func (g *readerGraph) run() {
	defer close(g.out)
	ticks, stop := g.tick(g.period)
	defer stop()

	buf := make([]byte, g.size*2)
	eof := false
	for {
		select {
		case <-g.quit:
			return
		case <-ticks:
		}

		if !eof {
			n, err := io.ReadFull(g.src, buf)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					select {
					case <-g.quit:
						return
					default:
					}
					log.Warn().Err(err).Str("module", "media.file").Msg("read audio")
				}
				eof = true
				clear(buf[n:])
			}
		} else {
			clear(buf)
		}

		select {
		case g.out <- pcm.Int16ToFloat(buf):
		case <-g.quit:
			return
		default:
			log.Debug().Str("module", "media.file").Msg("audio chunk dropped, consumer slow")
		}
	}
}
