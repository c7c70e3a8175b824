// Package speaking learns when the avatar starts and stops talking by
// polling the backend.
package speaking

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval      = time.Second
	DefaultStartAttempts = 20
	DefaultStopGrace     = 2 * time.Second
)

// Poller turns the level-triggered "is speaking" query into two waits.
type Poller struct {
	Query core.SpeakingQuerier

	Interval      time.Duration
	StartAttempts int
	// StopGrace is waited after the first "not speaking" observation to let
	// trailing audio and animation finish.
	StopGrace time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func New(q core.SpeakingQuerier) *Poller {
	return &Poller{
		Query:         q,
		Interval:      DefaultInterval,
		StartAttempts: DefaultStartAttempts,
		StopGrace:     DefaultStopGrace,
	}
}

// PollIsSpeaking fails closed: any query error reads as "not speaking".
func (p *Poller) PollIsSpeaking(ctx context.Context, sid domain.SessionID) bool {
	speaking, err := p.Query.IsSpeaking(ctx, sid)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("module", "speaking").Int("sessionid", int(sid)).Msg("is_speaking failed, assuming silent")
		}
		return false
	}
	return speaking
}

// WaitForStart polls until the avatar is speaking, at most StartAttempts
// times. It returns false when the attempts run out.
func (p *Poller) WaitForStart(ctx context.Context, sid domain.SessionID) (bool, error) {
	attempts := p.StartAttempts
	if attempts <= 0 {
		attempts = DefaultStartAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if p.PollIsSpeaking(ctx, sid) {
			return true, nil
		}
		if err := p.wait(ctx, p.interval()); err != nil {
			return false, err
		}
	}
	log.Info().Str("module", "speaking").Int("sessionid", int(sid)).Int("attempts", attempts).Msg("avatar never started speaking")
	return false, nil
}

// WaitForStop polls until the avatar is silent, then waits StopGrace. It has
// no attempt ceiling; only ctx ends it early.
func (p *Poller) WaitForStop(ctx context.Context, sid domain.SessionID) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.PollIsSpeaking(ctx, sid) {
			break
		}
		if err := p.wait(ctx, p.interval()); err != nil {
			return err
		}
	}
	return p.wait(ctx, p.StopGrace)
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
