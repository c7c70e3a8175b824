package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultDispatchTimeout = 30 * time.Second

// Dispatcher sends chat requests fire-and-forget. Failures are logged and
// never retried.
type Dispatcher struct {
	Sender    core.ChatSender
	Presenter core.Presenter
	Timeout   time.Duration

	wg sync.WaitGroup
}

func (d *Dispatcher) Dispatch(req domain.ChatRequest) {
	if d.Presenter != nil {
		d.Presenter.UserMessage(req.Text)
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		logger := log.With().
			Str("module", "app.dispatch").
			Int("sessionid", int(req.SessionID)).
			Int("frames", len(req.Frames)).
			Logger()
		if err := d.Sender.SendChat(ctx, req); err != nil {
			logger.Error().Err(err).Msg("chat request failed")
			return
		}
		logger.Info().Str("text", req.Text).Msg("chat request sent")
	}()
}

// Wait blocks until every in-flight request finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// TextChat sends typed messages.
type TextChat struct {
	Arbiter    *Arbiter
	Dispatcher *Dispatcher
	Session    *SessionField
}

func (t *TextChat) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		if t.Arbiter.Mode().IsCall() {
			return domain.ErrComposerDisabled
		}
		return domain.ErrEmptyText
	}
	composerOpen := func(m domain.InputMode) bool { return !m.IsCall() }
	sent := t.Arbiter.While(composerOpen, func() {
		t.Dispatcher.Dispatch(domain.NewChatRequest(text, t.Session.Get(), nil))
	})
	if !sent {
		return domain.ErrComposerDisabled
	}
	return nil
}
