// Package ptt implements push-to-talk: hold to recognize speech into the
// composer, release to send it.
package ptt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Debounce drains trailing recognition results after release.
const Debounce = 300 * time.Millisecond

type phase int

const (
	phaseIdle phase = iota
	phaseHeld
	phaseReleasing
)

type Controller struct {
	Arbiter    *app.Arbiter
	Recognizer core.SpeechRecognizer
	Chat       *app.TextChat
	Presenter  core.Presenter
	Debounce   time.Duration

	mu       sync.Mutex
	gen      uint64
	phase    phase
	composer string
	cancel   context.CancelFunc
	// afterFunc is time.AfterFunc unless a test replaces it.
	afterFunc func(d time.Duration, fn func())
	sent      chan struct{}
}

func New(arb *app.Arbiter, rec core.SpeechRecognizer, chat *app.TextChat, p core.Presenter) *Controller {
	return &Controller{
		Arbiter:    arb,
		Recognizer: rec,
		Chat:       chat,
		Presenter:  p,
		Debounce:   Debounce,
	}
}

// Press starts recognition. Only allowed from Idle. The button can be
// released while the recognizer is still starting; the press then winds
// down on its own once Start returns.
func (c *Controller) Press(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != phaseIdle || !c.Arbiter.Claim(domain.ModeIdle, domain.ModePushToTalk) {
		c.mu.Unlock()
		return domain.ErrModeBusy
	}
	c.gen++
	gen := c.gen
	c.phase = phaseHeld
	c.composer = ""
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	sent := make(chan struct{})
	c.sent = sent
	c.mu.Unlock()

	log.Info().Str("module", "ptt").Uint64("press", gen).Msg("pressed")
	err := c.Recognizer.Start(rctx, c.onResults)

	c.mu.Lock()
	held := c.gen == gen && c.phase == phaseHeld
	if err != nil {
		if held {
			c.reset()
		}
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "ptt").Uint64("press", gen).Msg("recognizer start")
		if held {
			c.Arbiter.SetMode(domain.ModeIdle)
			close(sent)
		}
		if c.Presenter != nil {
			c.Presenter.SystemMessage("speech recognition unavailable: " + err.Error())
		}
		return err
	}
	c.mu.Unlock()

	if !held {
		// Released before Start returned: Release's Stop came too early.
		log.Info().Str("module", "ptt").Uint64("press", gen).Msg("released during start, stopping recognizer")
		c.Recognizer.Stop()
	}
	return nil
}

// Release stops recognition and sends the composer after the debounce. It
// returns once the send is scheduled; Sent reports completion.
func (c *Controller) Release() error {
	c.mu.Lock()
	if c.phase != phaseHeld {
		c.mu.Unlock()
		return domain.ErrNotPressed
	}
	c.phase = phaseReleasing
	after := c.afterFunc
	d := c.Debounce
	c.mu.Unlock()

	c.Recognizer.Stop()
	log.Info().Str("module", "ptt").Msg("released")

	if after == nil {
		after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	after(d, c.finish)
	return nil
}

// Sent is closed when the current press has been fully handled.
func (c *Controller) Sent() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.sent
}

// Composer returns the text recognized so far.
func (c *Controller) Composer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer
}

func (c *Controller) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase != phaseIdle
}

// onResults sets the composer to the interim transcript, or the final one
// when there is no interim text.
func (c *Controller) onResults(batch []core.Recognition) {
	var interim, final strings.Builder
	for _, r := range batch {
		if r.Final {
			final.WriteString(r.Transcript)
		} else {
			interim.WriteString(r.Transcript)
		}
	}
	text := interim.String()
	if text == "" {
		text = final.String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseIdle {
		return
	}
	c.composer = text
}

func (c *Controller) finish() {
	c.mu.Lock()
	text := strings.TrimSpace(c.composer)
	done := c.sent
	c.reset()
	c.mu.Unlock()

	if text != "" {
		if err := c.Chat.Send(text); err != nil && !errors.Is(err, domain.ErrEmptyText) {
			log.Error().Err(err).Str("module", "ptt").Msg("send recognized text")
		}
	}
	c.Arbiter.SetMode(domain.ModeIdle)
	if done != nil {
		close(done)
	}
}

// reset must be called with mu held.
func (c *Controller) reset() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.phase = phaseIdle
	c.composer = ""
	c.sent = nil
}
