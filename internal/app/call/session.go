// Package call implements the voice/video call session state machine.
//
// Each call is one Session value. All of its state is owned by a single
// event loop goroutine; transport messages, audio chunks, frame ticks and
// reply-wait completions reach it as Events.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/dkeye/AvatarCall/internal/pcm"
	"github.com/dkeye/AvatarCall/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReplyWaiter waits for the avatar to answer. Satisfied by speaking.Poller.
type ReplyWaiter interface {
	WaitForStart(ctx context.Context, sid domain.SessionID) (bool, error)
	WaitForStop(ctx context.Context, sid domain.SessionID) error
}

// Deps are the collaborators shared by every call.
type Deps struct {
	Arbiter    *app.Arbiter
	Devices    core.MediaDevices
	Dialer     core.VoiceDialer
	Dispatcher *app.Dispatcher
	Replies    ReplyWaiter
	Presenter  core.Presenter
	Session    *app.SessionField
	Policy     app.Policy
	Scheduler  Scheduler
}

type Session struct {
	ID   string
	Kind domain.CallKind

	deps   *Deps
	opts   Options
	logger zerolog.Logger

	state          CallState
	turn           TurnState
	transport      core.VoiceConnection
	stream         core.MediaStream
	graph          core.AudioGraph
	frames         core.FrameSource
	serverReady    bool
	remoteSpeaking bool

	buffer     []domain.Frame
	sampling   bool
	sampleGen  uint64
	stopTicker func()
	replySeq   uint64
	drops      int

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	done     chan struct{}
	doneOnce sync.Once
	snap     atomic.Pointer[Snapshot]
}

func newSession(deps *Deps, opts Options, kind domain.CallKind) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     id,
		Kind:   kind,
		deps:   deps,
		opts:   opts,
		logger: log.With().Str("module", "call").Str("call_id", id).Stringer("kind", kind).Logger(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, opts.EventBuffer),
		done:   make(chan struct{}),
	}
	s.publish()
	return s
}

// start runs the Starting state: open the transport, request a recognition
// session and acquire devices. On failure the session is already torn down.
func (s *Session) start(ctx context.Context) error {
	s.state = StateStarting
	s.publish()
	s.logger.Info().Msg("call starting")

	conn, err := s.deps.Dialer.Dial(ctx, sessionHandler{s})
	if err != nil {
		return s.fail(&domain.TransportError{Op: "connect", Err: err})
	}
	s.transport = conn
	s.presentSystem("voice service connected")
	if err := conn.SendControl(protocol.ControlStart); err != nil {
		return s.fail(&domain.TransportError{Op: "start", Err: err})
	}

	stream, err := s.deps.Devices.Acquire(ctx, core.Constraints{
		Audio: s.opts.Audio,
		Video: s.Kind == domain.CallVideo,
	})
	if err != nil {
		var acq *domain.AcquisitionError
		if !errors.As(err, &acq) {
			err = &domain.AcquisitionError{Device: "media", Err: err}
		}
		return s.fail(err)
	}
	s.stream = stream
	s.graph = stream.Audio()
	s.frames = stream.Video()

	s.state = StateActive
	s.turn = TurnListening
	s.publish()
	if s.graph != nil {
		go s.pumpAudio(s.graph)
	}
	s.logger.Info().Msg("call active")
	return nil
}

func (s *Session) fail(err error) error {
	s.logger.Error().Err(err).Msg("call failed to start")
	s.presentSystem(fmt.Sprintf("%s call failed to start: %v", s.Kind, err))
	s.end("start failed")
	return err
}

func (s *Session) pumpAudio(g core.AudioGraph) {
	for chunk := range g.Chunks() {
		if !s.post(AudioChunk{Samples: chunk}) {
			return
		}
	}
}

// post queues ev for the loop. It reports false once the session is done.
func (s *Session) post(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// run is the event loop. onRelease runs after teardown and before Done
// is closed.
func (s *Session) run(onRelease func(*Session)) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.Handle(ev)
			if s.state == StateIdle {
				if onRelease != nil {
					onRelease(s)
				}
				s.closeDone()
				return
			}
		}
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the session is torn down and released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Handle advances the state machine by one event. It must only be called
// from the session's loop.
func (s *Session) Handle(ev Event) {
	switch e := ev.(type) {
	case MessageReceived:
		s.onMessage(e.Msg)
	case ProtocolFault:
		s.onProtocolFault(e.Err)
	case TransportClosed:
		if s.state == StateStarting || s.state == StateActive {
			s.logger.Warn().Err(e.Err).Msg("transport closed during call")
			s.presentSystem("call disconnected")
			s.end("transport closed")
		}
	case AudioChunk:
		s.onAudio(e.Samples)
	case FrameTick:
		s.onTick(e.Gen)
	case ReplyDone:
		s.onReplyDone(e)
	case StopRequested:
		s.end(e.Reason)
	}
	s.publish()
}

func (s *Session) onMessage(msg protocol.Message) {
	if s.state != StateActive && s.state != StateStarting {
		return
	}
	switch m := msg.(type) {
	case protocol.Started:
		s.serverReady = true
		s.logger.Info().Msg("voice service ready")
	case protocol.Underway:
		s.logger.Debug().Msg("user started speaking")
		// Audio is gated while the avatar answers, so this is not a new turn.
		if s.remoteSpeaking {
			return
		}
		if s.Kind == domain.CallVideo && !s.sampling && s.state == StateActive {
			s.startSampling()
		}
	case protocol.Complete:
		s.onComplete(m.Text)
	case protocol.Error:
		s.logger.Error().Str("message", m.Message).Msg("voice service error")
		s.presentSystem("voice service error: " + m.Message)
	case protocol.Stopped:
		s.logger.Debug().Msg("voice service stopped")
	}
}

func (s *Session) onProtocolFault(err error) {
	var unk *protocol.UnknownTypeError
	if errors.As(err, &unk) {
		s.logger.Warn().Str("type", unk.Type).Msg("unknown message type")
		s.presentSystem(fmt.Sprintf("voice service sent unknown message %q", unk.Type))
		return
	}
	s.logger.Error().Err(err).Msg("unreadable message")
}

func (s *Session) onAudio(samples []float32) {
	if s.state != StateActive || s.remoteSpeaking {
		return
	}
	data := pcm.ConvertAudioData(samples)
	if !s.serverReady || s.transport == nil || !s.transport.IsOpen() {
		return
	}
	err := s.transport.TrySend(data)
	if err == nil {
		s.drops = 0
		return
	}
	if !errors.Is(err, core.ErrBackpressure) {
		s.logger.Debug().Err(err).Msg("audio frame not sent")
		return
	}
	s.drops++
	policy := s.deps.Policy
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	if policy.OnBackPressure(s.drops) == app.EndCall {
		s.logger.Error().Int("drops", s.drops).Msg("transport stalled, ending call")
		s.presentSystem("call connection stalled")
		s.end("backpressure")
	}
}

func (s *Session) onReplyDone(e ReplyDone) {
	if s.state != StateActive || e.Seq != s.replySeq {
		return
	}
	if e.Err != nil && !errors.Is(e.Err, context.Canceled) {
		s.logger.Warn().Err(e.Err).Msg("reply wait ended early")
	}
	s.logger.Debug().Bool("avatar_started", e.Started).Msg("reply finished, listening")
	s.remoteSpeaking = false
	s.turn = TurnListening
}

// end runs the Ending state exactly once and leaves the session Idle.
func (s *Session) end(reason string) {
	if s.state == StateEnding || s.state == StateIdle {
		return
	}
	s.state = StateEnding
	s.publish()
	s.logger.Info().Str("reason", reason).Msg("call ending")

	s.stopSampling()
	if s.transport != nil && s.transport.IsOpen() {
		if err := s.transport.SendControl(protocol.ControlStop); err != nil {
			s.logger.Warn().Err(err).Msg("send stop")
		}
	}
	if s.graph != nil {
		if err := s.graph.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("release audio graph")
		}
	}
	if s.stream != nil {
		s.stream.Stop()
	}
	if s.transport != nil {
		s.transport.Close()
	}
	s.cancel()

	s.transport = nil
	s.stream = nil
	s.graph = nil
	s.frames = nil
	s.serverReady = false
	s.remoteSpeaking = false
	s.buffer = nil
	s.drops = 0
	s.turn = TurnListening
	s.state = StateIdle

	s.deps.Arbiter.SetMode(domain.ModeIdle)
	s.publish()
	s.logger.Info().Msg("call ended")
}

func (s *Session) presentSystem(text string) {
	if s.deps.Presenter != nil {
		s.deps.Presenter.SystemMessage(text)
	}
}

func (s *Session) publish() {
	s.snap.Store(&Snapshot{
		Active:         s.state == StateStarting || s.state == StateActive,
		CallID:         s.ID,
		Kind:           s.Kind,
		State:          s.state,
		Turn:           s.turn,
		ServerReady:    s.serverReady,
		RemoteSpeaking: s.remoteSpeaking,
		BufferedFrames: len(s.buffer),
	})
}

// Snapshot is safe to call from any goroutine.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

type sessionHandler struct{ s *Session }

func (h sessionHandler) OnMessage(m protocol.Message) { h.s.post(MessageReceived{Msg: m}) }
func (h sessionHandler) OnProtocolError(err error)   { h.s.post(ProtocolFault{Err: err}) }
func (h sessionHandler) OnClosed(err error)          { h.s.post(TransportClosed{Err: err}) }
