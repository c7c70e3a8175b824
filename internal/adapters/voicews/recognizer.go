package voicews

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/pcm"
	"github.com/dkeye/AvatarCall/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultFlushTimeout = 2 * time.Second

// Recognizer runs push-to-talk recognition over the call backend: while the
// button is held the microphone streams to the socket, and each "complete"
// becomes a final result. Stop waits for the backend to flush its last
// sentence.
type Recognizer struct {
	Dialer       core.VoiceDialer
	Devices      core.MediaDevices
	Audio        core.AudioConstraints
	FlushTimeout time.Duration

	mu  sync.Mutex
	run *recognition
}

func NewRecognizer(d core.VoiceDialer, dev core.MediaDevices) *Recognizer {
	return &Recognizer{
		Dialer:       d,
		Devices:      dev,
		Audio:        core.DefaultAudioConstraints(),
		FlushTimeout: DefaultFlushTimeout,
	}
}

type recognition struct {
	conn     core.VoiceConnection
	stream   core.MediaStream
	onResult func([]core.Recognition)

	mu      sync.Mutex
	ready   bool
	stopped chan struct{}
	once    sync.Once
}

func (r *recognition) OnMessage(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Started:
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()
	case protocol.Complete:
		if msg.Text != "" {
			r.onResult([]core.Recognition{{Transcript: msg.Text, Final: true}})
		}
	case protocol.Error:
		log.Warn().Str("module", "voicews.ptt").Str("message", msg.Message).Msg("recognition error")
	case protocol.Stopped:
		r.finish()
	}
}

func (r *recognition) OnProtocolError(err error) {
	log.Warn().Err(err).Str("module", "voicews.ptt").Msg("bad frame")
}

func (r *recognition) OnClosed(err error) {
	log.Warn().Err(err).Str("module", "voicews.ptt").Msg("recognition connection lost")
	r.finish()
}

func (r *recognition) finish() {
	r.once.Do(func() { close(r.stopped) })
}

func (r *recognition) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *recognition) pump(g core.AudioGraph) {
	for chunk := range g.Chunks() {
		if !r.isReady() || !r.conn.IsOpen() {
			continue
		}
		if err := r.conn.TrySend(pcm.ConvertAudioData(chunk)); err != nil && !errors.Is(err, core.ErrBackpressure) {
			return
		}
	}
}

func (rc *Recognizer) Start(ctx context.Context, onResult func([]core.Recognition)) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.run != nil {
		return errors.New("recognition already running")
	}

	run := &recognition{onResult: onResult, stopped: make(chan struct{})}
	conn, err := rc.Dialer.Dial(ctx, run)
	if err != nil {
		return err
	}
	run.conn = conn
	if err := conn.SendControl(protocol.ControlStart); err != nil {
		conn.Close()
		return err
	}
	stream, err := rc.Devices.Acquire(ctx, core.Constraints{Audio: rc.Audio})
	if err != nil {
		conn.Close()
		return err
	}
	run.stream = stream
	if g := stream.Audio(); g != nil {
		go run.pump(g)
	}
	rc.run = run
	log.Info().Str("module", "voicews.ptt").Msg("recognition started")
	return nil
}

// Stop releases the microphone, asks the backend to flush and waits up to
// FlushTimeout for it before closing the socket.
func (rc *Recognizer) Stop() {
	rc.mu.Lock()
	run := rc.run
	rc.run = nil
	rc.mu.Unlock()
	if run == nil {
		return
	}

	if g := run.stream.Audio(); g != nil {
		_ = g.Close()
	}
	run.stream.Stop()

	if run.conn.IsOpen() {
		if err := run.conn.SendControl(protocol.ControlStop); err == nil {
			timeout := rc.FlushTimeout
			if timeout <= 0 {
				timeout = DefaultFlushTimeout
			}
			select {
			case <-run.stopped:
			case <-time.After(timeout):
				log.Warn().Str("module", "voicews.ptt").Msg("backend did not acknowledge stop")
			}
		}
	}
	run.conn.Close()
	log.Info().Str("module", "voicews.ptt").Msg("recognition stopped")
}
