package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectAffordances(t *testing.T) {
	modes := []domain.InputMode{domain.ModeIdle, domain.ModePushToTalk, domain.ModeVoiceCall, domain.ModeVideoCall}
	for _, m := range modes {
		aff := Project(m)
		enabled := 0
		for _, on := range []bool{aff.PushToTalk, aff.VoiceCall, aff.VideoCall} {
			if on {
				enabled++
			}
		}
		if m == domain.ModeIdle {
			assert.Equal(t, 3, enabled, m.String())
		} else {
			assert.Equal(t, 1, enabled, m.String())
		}
		assert.Equal(t, !m.IsCall(), aff.TextComposer, m.String())
	}
	assert.True(t, Project(domain.ModeVideoCall).VideoCall)
	assert.True(t, Project(domain.ModePushToTalk).PushToTalk)
}

func TestArbiterNotifiesOnChangeOnly(t *testing.T) {
	a := NewArbiter()
	var got []domain.InputMode
	a.OnChange(func(m domain.InputMode, _ Affordances) { got = append(got, m) })

	a.SetMode(domain.ModeVoiceCall)
	a.SetMode(domain.ModeVoiceCall)
	a.SetMode(domain.ModeIdle)

	assert.Equal(t, []domain.InputMode{domain.ModeVoiceCall, domain.ModeIdle}, got)
	assert.Equal(t, domain.ModeIdle, a.Mode())
	assert.True(t, a.Affordances().TextComposer)
}

func TestFeedHistoryBounded(t *testing.T) {
	f := NewFeed(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		f.UserMessage(s)
	}
	h := f.History()
	require.Len(t, h, 3)
	assert.Equal(t, "b", h[0].Text)
	assert.Equal(t, uint64(4), h[2].Seq)
}

func TestFeedSubscribe(t *testing.T) {
	f := NewFeed(0)
	ch, cancel := f.Subscribe(4)

	f.SystemMessage("voice service connected")
	f.ConnectionStatus(domain.StatusConnected)
	f.ModeChanged(domain.ModeVideoCall, Project(domain.ModeVideoCall))

	ev := <-ch
	assert.Equal(t, EventSystem, ev.Kind)
	ev = <-ch
	assert.Equal(t, domain.StatusConnected, ev.Status)
	ev = <-ch
	assert.Equal(t, "videoCall", ev.Mode)
	require.NotNil(t, ev.Affordances)
	assert.False(t, ev.Affordances.TextComposer)
	assert.Equal(t, domain.StatusConnected, f.Status())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestFeedSlowSubscriberDoesNotBlock(t *testing.T) {
	f := NewFeed(0)
	_, cancel := f.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			f.UserMessage("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, f.History(), 10)
}

type recordingSender struct {
	mu   sync.Mutex
	reqs []domain.ChatRequest
	err  error
}

func (s *recordingSender) SendChat(_ context.Context, req domain.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

func TestTextChat(t *testing.T) {
	sender := &recordingSender{}
	feed := NewFeed(0)
	arb := NewArbiter()
	d := &Dispatcher{Sender: sender, Presenter: feed}
	chat := &TextChat{Arbiter: arb, Dispatcher: d, Session: NewSessionField(5)}

	require.NoError(t, chat.Send("hello"))
	assert.ErrorIs(t, chat.Send("   "), domain.ErrEmptyText)

	arb.SetMode(domain.ModeVideoCall)
	assert.ErrorIs(t, chat.Send("hi"), domain.ErrComposerDisabled)

	arb.SetMode(domain.ModePushToTalk)
	require.NoError(t, chat.Send("from ptt"))

	d.Wait()
	require.Len(t, sender.reqs, 2)
	assert.Equal(t, domain.ChatRequest{
		Text:      "hello",
		Type:      "chat",
		Interrupt: true,
		SessionID: 5,
	}, sender.reqs[0])

	var users []string
	for _, ev := range feed.History() {
		if ev.Kind == EventUser {
			users = append(users, ev.Text)
		}
	}
	assert.Equal(t, []string{"hello", "from ptt"}, users)
}

func TestDispatchFailureIsNotRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	d := &Dispatcher{Sender: sender}
	d.Dispatch(domain.NewChatRequest("x", 1, nil))
	d.Wait()
	assert.Len(t, sender.reqs, 1)
}

func TestSessionField(t *testing.T) {
	f := NewSessionField(0)
	require.NoError(t, f.Set(42))
	assert.Equal(t, domain.SessionID(42), f.Get())
	assert.ErrorIs(t, f.Set(-1), domain.ErrSessionIDInvalid)
	assert.Equal(t, domain.SessionID(42), f.Get())
}

func TestSimplePolicy(t *testing.T) {
	assert.Equal(t, DropFrame, SimplePolicy{}.OnBackPressure(1000))
	p := SimplePolicy{MaxConsecutiveDrops: 2}
	assert.Equal(t, DropFrame, p.OnBackPressure(1))
	assert.Equal(t, EndCall, p.OnBackPressure(2))
}

func TestArbiterClaim(t *testing.T) {
	a := NewArbiter()
	var seen []domain.InputMode
	a.OnChange(func(m domain.InputMode, _ Affordances) { seen = append(seen, m) })

	assert.True(t, a.Claim(domain.ModeIdle, domain.ModeVideoCall))
	assert.False(t, a.Claim(domain.ModeIdle, domain.ModePushToTalk))
	assert.Equal(t, domain.ModeVideoCall, a.Mode())
	assert.Equal(t, []domain.InputMode{domain.ModeVideoCall}, seen)
}

func TestArbiterClaimIsExclusive(t *testing.T) {
	a := NewArbiter()
	targets := []domain.InputMode{domain.ModePushToTalk, domain.ModeVoiceCall, domain.ModeVideoCall}

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(to domain.InputMode) {
			defer wg.Done()
			if a.Claim(domain.ModeIdle, to) {
				wins.Add(1)
			}
		}(targets[i%len(targets)])
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.NotEqual(t, domain.ModeIdle, a.Mode())
}

func TestArbiterWhileHoldsMode(t *testing.T) {
	a := NewArbiter()
	notCall := func(m domain.InputMode) bool { return !m.IsCall() }

	ran := false
	assert.True(t, a.While(notCall, func() { ran = true }))
	assert.True(t, ran)

	claimed := make(chan bool)
	assert.True(t, a.While(notCall, func() {
		go func() { claimed <- a.Claim(domain.ModeIdle, domain.ModeVoiceCall) }()
		select {
		case <-claimed:
			t.Error("mode changed while held")
		case <-time.After(20 * time.Millisecond):
		}
	}))
	assert.True(t, <-claimed)
	assert.False(t, a.While(notCall, func() { t.Error("ran during a call") }))
}
