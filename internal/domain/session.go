package domain

import (
	"strconv"
	"strings"
)

// SessionID identifies the avatar session on the backend. It is supplied by
// the operator and threaded through every request, never generated here.
type SessionID int

const MaxSessionID = 1 << 20

func ParseSessionID(raw string) (SessionID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrSessionIDEmpty
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > MaxSessionID {
		return 0, ErrSessionIDInvalid
	}
	return SessionID(n), nil
}

func (s SessionID) Validate() error {
	if s < 0 || s > MaxSessionID {
		return ErrSessionIDInvalid
	}
	return nil
}
