package call

import (
	"errors"
	"io"
	"testing"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/core"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/dkeye/AvatarCall/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(m protocol.Message) Event { return MessageReceived{Msg: m} }

func TestStartOpensTransportThenDevices(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)

	controls, _, _ := f.conn.sent()
	assert.Equal(t, []protocol.Control{protocol.ControlStart}, controls)
	assert.True(t, f.devices.got.Video)
	assert.Equal(t, 16000, f.devices.got.Audio.SampleRate)
	assert.Equal(t, StateActive, s.Snapshot().State)
	assert.Equal(t, TurnListening, s.Snapshot().Turn)
	assert.Contains(t, f.presenter.systemMessages(), "voice service connected")
}

func TestVideoTurnSendsSampledFrames(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Underway{}))
	assert.Equal(t, TurnCapturing, s.Snapshot().Turn)

	for i := 0; i < 3; i++ {
		f.sched.fire()
		next(s)
	}
	assert.Equal(t, 3, s.Snapshot().BufferedFrames)

	s.Handle(msg(protocol.Complete{Text: "停"}))
	f.dispatch.Wait()

	reqs := f.sender.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "停", reqs[0].Text)
	assert.Equal(t, domain.SessionID(7), reqs[0].SessionID)
	assert.True(t, reqs[0].Interrupt)
	assert.Len(t, reqs[0].Frames, 3)
	for _, fr := range reqs[0].Frames {
		assert.Equal(t, []byte{0xFF, 0xD8}, []byte(fr[:2]))
	}

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.BufferedFrames)
	assert.Equal(t, TurnAwaitingReply, snap.Turn)
	assert.True(t, snap.RemoteSpeaking)
}

func TestSamplingStopsBeforeRequestIsBuilt(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Underway{}))
	f.sched.fire()
	next(s)

	s.Handle(msg(protocol.Complete{Text: "hello"}))
	f.dispatch.Wait()
	assert.Equal(t, []string{"sampling stopped", "user message"}, f.tr.list())

	// A tick from the finished run must not refill the buffer.
	f.sched.fire()
	next(s)
	assert.Equal(t, 0, s.Snapshot().BufferedFrames)
	require.Len(t, f.sender.requests(), 1)
	assert.Len(t, f.sender.requests()[0].Frames, 1)
}

func TestUnderwayWhileAwaitingReplyIsIgnored(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Complete{Text: "hi"}))
	require.Equal(t, TurnAwaitingReply, s.Snapshot().Turn)
	scheduled := len(f.sched.fns)

	s.Handle(msg(protocol.Underway{}))
	assert.Len(t, f.sched.fns, scheduled, "no sampling while the avatar replies")
	assert.Equal(t, TurnAwaitingReply, s.Snapshot().Turn)
	assert.Equal(t, 0, s.Snapshot().BufferedFrames)

	close(f.waiter.release)
	require.IsType(t, ReplyDone{}, next(s))
	assert.Equal(t, TurnListening, s.Snapshot().Turn)

	s.Handle(msg(protocol.Underway{}))
	assert.Len(t, f.sched.fns, scheduled+1)
	assert.Equal(t, TurnCapturing, s.Snapshot().Turn)
	f.dispatch.Wait()
}

func TestEmptyCompleteSendsNothing(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Underway{}))
	f.sched.fire()
	next(s)

	s.Handle(msg(protocol.Complete{Text: ""}))
	f.dispatch.Wait()

	assert.Empty(t, f.sender.requests())
	assert.Equal(t, 1, f.sched.stopCount())
	assert.Equal(t, 0, s.Snapshot().BufferedFrames)
	assert.Equal(t, TurnListening, s.Snapshot().Turn)
	assert.Equal(t, domain.ModeVideoCall, f.arbiter.Mode())
	assert.Equal(t, StateActive, s.Snapshot().State)
}

func TestVoiceCallDoesNotSample(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)
	assert.False(t, f.devices.got.Video)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Underway{}))
	assert.Empty(t, f.sched.fns)

	s.Handle(msg(protocol.Complete{Text: "你好"}))
	f.dispatch.Wait()
	reqs := f.sender.requests()
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].Frames)
}

func TestHalfDuplexGate(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)

	chunk := AudioChunk{Samples: make([]float32, 2048)}

	s.Handle(chunk)
	_, sent, _ := f.conn.sent()
	assert.Equal(t, 0, sent, "audio before started")

	s.Handle(msg(protocol.Started{}))
	s.Handle(chunk)
	_, sent, _ = f.conn.sent()
	assert.Equal(t, 1, sent)

	s.Handle(msg(protocol.Complete{Text: "hi"}))
	s.Handle(chunk)
	s.Handle(chunk)
	_, sent, _ = f.conn.sent()
	assert.Equal(t, 1, sent, "audio while the avatar replies")

	close(f.waiter.release)
	ev := next(s)
	require.IsType(t, ReplyDone{}, ev)
	assert.False(t, s.Snapshot().RemoteSpeaking)
	assert.Equal(t, TurnListening, s.Snapshot().Turn)

	s.Handle(chunk)
	_, sent, _ = f.conn.sent()
	assert.Equal(t, 2, sent)
	f.dispatch.Wait()
}

func TestCompleteWhileReplyingIsDiscarded(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)

	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Complete{Text: "one"}))
	s.Handle(msg(protocol.Complete{Text: "two"}))
	f.dispatch.Wait()

	reqs := f.sender.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "one", reqs[0].Text)
	assert.Equal(t, TurnAwaitingReply, s.Snapshot().Turn)
}

func TestUnexpectedCloseTearsDownOnce(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVideo)
	require.NoError(t, err)
	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Underway{}))

	f.conn.setOpen(false)
	s.Handle(TransportClosed{Err: io.EOF})
	s.Handle(TransportClosed{Err: io.EOF})

	controls, _, closed := f.conn.sent()
	assert.Equal(t, []protocol.Control{protocol.ControlStart}, controls, "no stop on a dead socket")
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, f.graph.closeCount())
	assert.Equal(t, 1, f.stream.stopCount())
	assert.Equal(t, 1, f.sched.stopCount())
	assert.Equal(t, domain.ModeIdle, f.arbiter.Mode())
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.Contains(t, f.presenter.systemMessages(), "call disconnected")
}

func TestStopSendsStopControl(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)

	s.Handle(StopRequested{Reason: "user"})
	s.Handle(StopRequested{Reason: "user"})

	controls, _, closed := f.conn.sent()
	assert.Equal(t, []protocol.Control{protocol.ControlStart, protocol.ControlStop}, controls)
	assert.Equal(t, 1, closed)
	assert.Equal(t, domain.ModeIdle, f.arbiter.Mode())
}

func TestStopCancelsReplyWait(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)
	s.Handle(msg(protocol.Started{}))
	s.Handle(msg(protocol.Complete{Text: "hi"}))

	s.Handle(StopRequested{Reason: "user"})
	ev := next(s)
	done, ok := ev.(ReplyDone)
	require.True(t, ok)
	assert.False(t, done.Started)
	assert.Equal(t, StateIdle, s.Snapshot().State)
	f.dispatch.Wait()
}

func TestAcquisitionFailure(t *testing.T) {
	f := newFixture()
	f.devices.err = errors.New("permission denied")

	s, err := f.startSession(domain.CallVideo)
	require.Error(t, err)

	var acq *domain.AcquisitionError
	assert.ErrorAs(t, err, &acq)
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.Equal(t, domain.ModeIdle, f.arbiter.Mode())
	_, _, closed := f.conn.sent()
	assert.Equal(t, 1, closed)

	msgs := f.presenter.systemMessages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "video call failed to start")
}

func TestDialFailure(t *testing.T) {
	f := newFixture()
	f.dialer.err = errors.New("refused")

	s, err := f.startSession(domain.CallVoice)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "connect", te.Op)
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.Equal(t, domain.ModeIdle, f.arbiter.Mode())
}

func TestBackpressureEndsCallAfterLimit(t *testing.T) {
	f := newFixture()
	f.deps.Policy = app.SimplePolicy{MaxConsecutiveDrops: 3}
	f.conn.sendErr = core.ErrBackpressure

	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)
	s.Handle(msg(protocol.Started{}))

	chunk := AudioChunk{Samples: make([]float32, 16)}
	s.Handle(chunk)
	s.Handle(chunk)
	assert.Equal(t, StateActive, s.Snapshot().State)
	s.Handle(chunk)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestBackendErrorKeepsCall(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)

	s.Handle(msg(protocol.Error{Message: "decoder crashed"}))
	s.Handle(ProtocolFault{Err: &protocol.UnknownTypeError{Type: "mystery"}})

	assert.Equal(t, StateActive, s.Snapshot().State)
	msgs := f.presenter.systemMessages()
	assert.Contains(t, msgs, "voice service error: decoder crashed")
	assert.Contains(t, msgs, `voice service sent unknown message "mystery"`)
}

func TestAudioChunksFlowThroughGraph(t *testing.T) {
	f := newFixture()
	s, err := f.startSession(domain.CallVoice)
	require.NoError(t, err)
	s.Handle(msg(protocol.Started{}))

	f.graph.ch <- []float32{0, 0.5, -0.5}
	ev := next(s)
	require.IsType(t, AudioChunk{}, ev)

	_, sent, _ := f.conn.sent()
	assert.Equal(t, 1, sent)
	f.conn.mu.Lock()
	assert.Len(t, f.conn.frames[0], 6)
	f.conn.mu.Unlock()
}
