package call

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/dkeye/AvatarCall/internal/protocol"
)

// trace records the order of side effects across fakes.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	t.steps = append(t.steps, s)
	t.mu.Unlock()
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type fakeConn struct {
	mu       sync.Mutex
	open     bool
	controls []protocol.Control
	frames   [][]byte
	closed   int
	sendErr  error
}

func (c *fakeConn) SendControl(ctl protocol.Control) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, ctl)
	return nil
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closed++
}

func (c *fakeConn) setOpen(v bool) {
	c.mu.Lock()
	c.open = v
	c.mu.Unlock()
}

func (c *fakeConn) sent() (controls []protocol.Control, frames int, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Control(nil), c.controls...), len(c.frames), c.closed
}

type fakeDialer struct {
	conn    *fakeConn
	err     error
	handler core.VoiceHandler
}

func (d *fakeDialer) Dial(_ context.Context, h core.VoiceHandler) (core.VoiceConnection, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.handler = h
	d.conn.setOpen(true)
	return d.conn, nil
}

type fakeGraph struct {
	ch     chan []float32
	once   sync.Once
	mu     sync.Mutex
	closed int
}

func newFakeGraph() *fakeGraph { return &fakeGraph{ch: make(chan []float32)} }

func (g *fakeGraph) Chunks() <-chan []float32 { return g.ch }

func (g *fakeGraph) Close() error {
	g.mu.Lock()
	g.closed++
	g.mu.Unlock()
	g.once.Do(func() { close(g.ch) })
	return nil
}

func (g *fakeGraph) closeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

type fakeFrames struct {
	ready bool
}

func (f *fakeFrames) Ready() bool { return f.ready }

func (f *fakeFrames) Snapshot() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	return img, nil
}

type fakeStream struct {
	graph   *fakeGraph
	frames  *fakeFrames
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) Audio() core.AudioGraph { return s.graph }

func (s *fakeStream) Video() core.FrameSource {
	if s.frames == nil {
		return nil
	}
	return s.frames
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevices struct {
	stream *fakeStream
	err    error
	got    core.Constraints
}

func (d *fakeDevices) Acquire(_ context.Context, c core.Constraints) (core.MediaStream, error) {
	d.got = c
	if d.err != nil {
		return nil, d.err
	}
	if !c.Video {
		d.stream.frames = nil
	}
	return d.stream, nil
}

type fakeSender struct {
	mu   sync.Mutex
	reqs []domain.ChatRequest
}

func (s *fakeSender) SendChat(_ context.Context, req domain.ChatRequest) error {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) requests() []domain.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatRequest(nil), s.reqs...)
}

// fakeWaiter holds each reply wait until release is signalled.
type fakeWaiter struct {
	release chan struct{}
}

func (w *fakeWaiter) WaitForStart(ctx context.Context, _ domain.SessionID) (bool, error) {
	select {
	case <-w.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (w *fakeWaiter) WaitForStop(ctx context.Context, _ domain.SessionID) error {
	return ctx.Err()
}

type fakeScheduler struct {
	tr      *trace
	mu      sync.Mutex
	fns     []func()
	stopped int
}

func (s *fakeScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.stopped++
		s.mu.Unlock()
		if s.tr != nil {
			s.tr.add("sampling stopped")
		}
	}
}

// fire runs the most recently scheduled tick func.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	fn := s.fns[len(s.fns)-1]
	s.mu.Unlock()
	fn()
}

func (s *fakeScheduler) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakePresenter struct {
	tr     *trace
	mu     sync.Mutex
	user   []string
	system []string
}

func (p *fakePresenter) UserMessage(text string) {
	p.mu.Lock()
	p.user = append(p.user, text)
	p.mu.Unlock()
	if p.tr != nil {
		p.tr.add("user message")
	}
}

func (p *fakePresenter) SystemMessage(text string) {
	p.mu.Lock()
	p.system = append(p.system, text)
	p.mu.Unlock()
}

func (p *fakePresenter) ConnectionStatus(domain.ConnStatus) {}

func (p *fakePresenter) systemMessages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.system...)
}

type fixture struct {
	tr        *trace
	conn      *fakeConn
	dialer    *fakeDialer
	graph     *fakeGraph
	stream    *fakeStream
	devices   *fakeDevices
	sender    *fakeSender
	waiter    *fakeWaiter
	sched     *fakeScheduler
	presenter *fakePresenter
	arbiter   *app.Arbiter
	dispatch  *app.Dispatcher
	deps      *Deps
}

func newFixture() *fixture {
	tr := &trace{}
	f := &fixture{
		tr:        tr,
		conn:      &fakeConn{},
		graph:     newFakeGraph(),
		sender:    &fakeSender{},
		waiter:    &fakeWaiter{release: make(chan struct{})},
		sched:     &fakeScheduler{tr: tr},
		presenter: &fakePresenter{tr: tr},
		arbiter:   app.NewArbiter(),
	}
	f.dialer = &fakeDialer{conn: f.conn}
	f.stream = &fakeStream{graph: f.graph, frames: &fakeFrames{ready: true}}
	f.devices = &fakeDevices{stream: f.stream}
	f.dispatch = &app.Dispatcher{Sender: f.sender, Presenter: f.presenter}
	f.deps = &Deps{
		Arbiter:    f.arbiter,
		Devices:    f.devices,
		Dialer:     f.dialer,
		Dispatcher: f.dispatch,
		Replies:    f.waiter,
		Presenter:  f.presenter,
		Session:    app.NewSessionField(7),
		Policy:     app.SimplePolicy{},
		Scheduler:  f.sched,
	}
	return f
}

// startSession brings a session to Active without running its loop, so a
// test can drive it with Handle.
func (f *fixture) startSession(kind domain.CallKind) (*Session, error) {
	s := newSession(f.deps, DefaultOptions(), kind)
	f.arbiter.SetMode(kind.Mode())
	err := s.start(context.Background())
	return s, err
}

// next hands the next queued event to the session.
func next(s *Session) Event {
	select {
	case ev := <-s.events:
		s.Handle(ev)
		return ev
	case <-time.After(2 * time.Second):
		panic("no event queued")
	}
}
