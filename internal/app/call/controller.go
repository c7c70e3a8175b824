package call

import (
	"context"
	"sync"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Controller owns at most one Session at a time.
type Controller struct {
	deps *Deps
	opts Options

	mu      sync.Mutex
	current *Session
}

func NewController(deps Deps, opts Options) *Controller {
	if deps.Scheduler == nil {
		deps.Scheduler = TickerScheduler{}
	}
	return &Controller{deps: &deps, opts: opts.withDefaults()}
}

// Start runs the Starting state synchronously and then hands the session to
// its event loop. The caller must be in Idle mode.
func (c *Controller) Start(ctx context.Context, kind domain.CallKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return domain.ErrCallActive
	}
	if !c.deps.Arbiter.Claim(domain.ModeIdle, kind.Mode()) {
		log.Info().Str("module", "call").Stringer("mode", c.deps.Arbiter.Mode()).Msg("call refused, input mode busy")
		return domain.ErrModeBusy
	}

	s := newSession(c.deps, c.opts, kind)
	c.current = s

	if err := s.start(ctx); err != nil {
		c.current = nil
		s.closeDone()
		return err
	}
	go s.run(c.release)
	return nil
}

func (c *Controller) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
	}
}

// Stop ends the active call and waits for teardown.
func (c *Controller) Stop(ctx context.Context, reason string) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return domain.ErrNoCall
	}

	s.post(StopRequested{Reason: reason})
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle mirrors the call buttons: stop the active call if there is one,
// otherwise start a call of kind. It reports whether a call was started.
func (c *Controller) Toggle(ctx context.Context, kind domain.CallKind) (bool, error) {
	if c.Active() {
		return false, c.Stop(ctx, "toggled off")
	}
	if err := c.Start(ctx, kind); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Snapshot describes the current call, or an idle one.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return Snapshot{State: StateIdle}
	}
	return s.Snapshot()
}

// Close stops any active call. Used on shutdown.
func (c *Controller) Close(ctx context.Context) {
	if err := c.Stop(ctx, "shutdown"); err != nil && err != domain.ErrNoCall {
		log.Warn().Err(err).Str("module", "call").Msg("stop on shutdown")
	}
}
