package app

import (
	"sync"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Affordances is the availability of each input surface for a mode.
type Affordances struct {
	PushToTalk   bool `json:"push_to_talk"`
	VoiceCall    bool `json:"voice_call"`
	VideoCall    bool `json:"video_call"`
	TextComposer bool `json:"text_composer"`
}

// Project maps a mode to its affordances. In Idle every surface is an entry
// point; otherwise only the active surface stays enabled, and call modes
// also disable the text composer.
func Project(m domain.InputMode) Affordances {
	idle := m == domain.ModeIdle
	return Affordances{
		PushToTalk:   idle || m == domain.ModePushToTalk,
		VoiceCall:    idle || m == domain.ModeVoiceCall,
		VideoCall:    idle || m == domain.ModeVideoCall,
		TextComposer: !m.IsCall(),
	}
}

type ModeObserver func(domain.InputMode, Affordances)

// Arbiter holds the single input mode. SetMode is a projection, not a
// guard: surfaces leave Idle through Claim.
type Arbiter struct {
	mu        sync.RWMutex
	mode      domain.InputMode
	observers []ModeObserver
}

func NewArbiter() *Arbiter {
	return &Arbiter{mode: domain.ModeIdle}
}

func (a *Arbiter) OnChange(fn ModeObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *Arbiter) Mode() domain.InputMode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

func (a *Arbiter) Affordances() Affordances {
	return Project(a.Mode())
}

func (a *Arbiter) SetMode(m domain.InputMode) {
	a.mu.Lock()
	prev := a.mode
	a.mode = m
	observers := append([]ModeObserver(nil), a.observers...)
	a.mu.Unlock()

	a.notify(prev, m, observers)
}

// Claim switches from one mode to another only if from is still current.
// Entry points use it so that two surfaces cannot both leave Idle.
func (a *Arbiter) Claim(from, to domain.InputMode) bool {
	a.mu.Lock()
	if a.mode != from {
		a.mu.Unlock()
		return false
	}
	a.mode = to
	observers := append([]ModeObserver(nil), a.observers...)
	a.mu.Unlock()

	a.notify(from, to, observers)
	return true
}

// While runs fn if ok accepts the current mode. The mode cannot change
// until fn returns, so fn must not call back into the Arbiter.
func (a *Arbiter) While(ok func(domain.InputMode) bool, fn func()) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !ok(a.mode) {
		return false
	}
	fn()
	return true
}

func (a *Arbiter) notify(prev, m domain.InputMode, observers []ModeObserver) {
	if prev == m {
		return
	}
	aff := Project(m)
	log.Info().Str("module", "app.arbiter").Stringer("from", prev).Stringer("to", m).Msg("input mode changed")
	for _, fn := range observers {
		fn(m, aff)
	}
}
