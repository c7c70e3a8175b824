package call

import (
	"bytes"
	"image/jpeg"

	"github.com/dkeye/AvatarCall/internal/domain"
)

func (s *Session) startSampling() {
	s.buffer = nil
	s.sampling = true
	s.sampleGen++
	gen := s.sampleGen
	if s.deps.Scheduler != nil {
		s.stopTicker = s.deps.Scheduler.Every(s.opts.SamplePeriod, func() {
			s.post(FrameTick{Gen: gen})
		})
	}
	s.turn = TurnCapturing
	s.logger.Debug().Uint64("gen", gen).Msg("frame sampling started")
}

// stopSampling halts the ticker and hands back the turn's frames, leaving
// the buffer empty. Ticks already queued carry a stale generation and are
// ignored.
func (s *Session) stopSampling() []domain.Frame {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
	if s.sampling {
		s.logger.Debug().Int("frames", len(s.buffer)).Msg("frame sampling stopped")
	}
	s.sampling = false
	s.sampleGen++
	frames := s.buffer
	s.buffer = nil
	return frames
}

func (s *Session) onTick(gen uint64) {
	if s.state != StateActive || !s.sampling || gen != s.sampleGen || s.frames == nil {
		return
	}
	if !s.frames.Ready() {
		return
	}
	img, err := s.frames.Snapshot()
	if err != nil {
		s.logger.Warn().Err(err).Msg("frame snapshot")
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		s.logger.Warn().Err(err).Msg("frame encode")
		return
	}
	s.buffer = append(s.buffer, domain.Frame(buf.Bytes()))
	s.logger.Debug().Int("n", len(s.buffer)).Msg("frame captured")
}

// onComplete is the Dispatching step. Sampling stops before anything reads
// the buffer.
func (s *Session) onComplete(text string) {
	if s.state != StateActive {
		return
	}
	s.turn = TurnDispatching
	frames := s.stopSampling()

	if text == "" || s.remoteSpeaking {
		s.logger.Debug().
			Bool("empty", text == "").
			Bool("remote_speaking", s.remoteSpeaking).
			Int("frames", len(frames)).
			Msg("turn discarded")
		if s.remoteSpeaking {
			s.turn = TurnAwaitingReply
		} else {
			s.turn = TurnListening
		}
		return
	}

	s.logger.Info().Str("text", text).Int("frames", len(frames)).Msg("utterance recognized")
	req := domain.NewChatRequest(text, s.deps.Session.Get(), frames)
	s.deps.Dispatcher.Dispatch(req)
	s.awaitReply(req.SessionID)
}

// awaitReply keeps the microphone gate closed until the avatar has started
// and finished answering. The wait ends early when the call ends.
func (s *Session) awaitReply(sid domain.SessionID) {
	s.remoteSpeaking = true
	s.turn = TurnAwaitingReply
	s.replySeq++
	seq := s.replySeq
	ctx := s.ctx
	waiter := s.deps.Replies

	go func() {
		started, err := waiter.WaitForStart(ctx, sid)
		if err == nil && started {
			err = waiter.WaitForStop(ctx, sid)
		}
		s.post(ReplyDone{Seq: seq, Started: started, Err: err})
	}()
}
