package app

import (
	"sync/atomic"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionField is the operator-supplied avatar session id.
type SessionField struct {
	v atomic.Int64
}

func NewSessionField(initial domain.SessionID) *SessionField {
	f := &SessionField{}
	f.v.Store(int64(initial))
	return f
}

func (f *SessionField) Get() domain.SessionID {
	return domain.SessionID(f.v.Load())
}

func (f *SessionField) Set(sid domain.SessionID) error {
	if err := sid.Validate(); err != nil {
		return err
	}
	f.v.Store(int64(sid))
	log.Info().Str("module", "app.session").Int("sessionid", int(sid)).Msg("session id set")
	return nil
}
