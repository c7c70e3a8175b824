package app

import (
	"sync"
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	EventUser   EventKind = "user"
	EventSystem EventKind = "system"
	EventStatus EventKind = "status"
	EventMode   EventKind = "mode"
)

// Event is one entry of the message feed.
type Event struct {
	Seq         uint64            `json:"seq"`
	Kind        EventKind         `json:"kind"`
	At          time.Time         `json:"at"`
	Text        string            `json:"text,omitempty"`
	Status      domain.ConnStatus `json:"status,omitempty"`
	Mode        string            `json:"mode,omitempty"`
	Affordances *Affordances      `json:"affordances,omitempty"`
}

const DefaultFeedHistory = 200

// Feed is the Presenter of the control API: a bounded history of chat and
// status events, fanned out to subscribers. Slow subscribers miss events.
type Feed struct {
	mu      sync.RWMutex
	limit   int
	seq     uint64
	history []Event
	status  domain.ConnStatus
	subs    map[string]chan Event
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = DefaultFeedHistory
	}
	return &Feed{
		limit:  limit,
		status: domain.StatusDisconnected,
		subs:   make(map[string]chan Event),
	}
}

func (f *Feed) UserMessage(text string) {
	f.publish(Event{Kind: EventUser, Text: text})
}

func (f *Feed) SystemMessage(text string) {
	f.publish(Event{Kind: EventSystem, Text: text})
}

func (f *Feed) ConnectionStatus(s domain.ConnStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
	f.publish(Event{Kind: EventStatus, Status: s})
}

// ModeChanged is an Arbiter observer.
func (f *Feed) ModeChanged(m domain.InputMode, aff Affordances) {
	f.publish(Event{Kind: EventMode, Mode: m.String(), Affordances: &aff})
}

func (f *Feed) Status() domain.ConnStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Feed) History() []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Event, len(f.history))
	copy(out, f.history)
	return out
}

// Subscribe returns a channel of future events and a cancel func that
// closes it.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	f.mu.Lock()
	f.subs[id] = ch
	f.mu.Unlock()
	log.Debug().Str("module", "app.feed").Str("sub", id).Msg("subscribed")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(ch)
			f.mu.Unlock()
			log.Debug().Str("module", "app.feed").Str("sub", id).Msg("unsubscribed")
		})
	}
	return ch, cancel
}

func (f *Feed) publish(ev Event) {
	f.mu.Lock()
	f.seq++
	ev.Seq = f.seq
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	f.history = append(f.history, ev)
	if over := len(f.history) - f.limit; over > 0 {
		f.history = append(f.history[:0:0], f.history[over:]...)
	}
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Str("module", "app.feed").Str("sub", id).Uint64("seq", ev.Seq).Msg("subscriber slow, event dropped")
		}
	}
}
