package media

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MaxReadErrors consecutive device read failures end the graph.
	MaxReadErrors  = 10
	readErrBackoff = 50 * time.Millisecond
)

// capture copies device buffers into out until quit closes or the device
// keeps failing. read fills in. It closes out on return.
type capture struct {
	read    func() error
	in      []float32
	out     chan []float32
	quit    <-chan struct{}
	backoff time.Duration
}

func (c *capture) run() {
	defer close(c.out)
	backoff := c.backoff
	if backoff <= 0 {
		backoff = readErrBackoff
	}
	failures := 0
	for {
		select {
		case <-c.quit:
			return
		default:
		}
		if err := c.read(); err != nil {
			failures++
			if failures >= MaxReadErrors {
				log.Error().Err(err).Str("module", "media.capture").Int("failures", failures).Msg("microphone lost, closing audio graph")
				return
			}
			log.Warn().Err(err).Str("module", "media.capture").Int("failures", failures).Msg("read")
			select {
			case <-c.quit:
				return
			case <-time.After(backoff * time.Duration(failures)):
			}
			continue
		}
		failures = 0
		chunk := make([]float32, len(c.in))
		copy(chunk, c.in)
		select {
		case c.out <- chunk:
		case <-c.quit:
			return
		default:
			log.Debug().Str("module", "media.capture").Msg("chunk dropped, consumer slow")
		}
	}
}
