package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCallActive       = errors.New("call already active")
	ErrNoCall           = errors.New("no active call")
	ErrModeBusy         = errors.New("another input mode is active")
	ErrNotPressed       = errors.New("push-to-talk is not held")
	ErrComposerDisabled = errors.New("text input is disabled during a call")
	ErrEmptyText        = errors.New("empty text")
	ErrUnknownCallKind  = errors.New("unknown call kind")
	ErrUnknownVariant   = errors.New("unknown media variant")
	ErrSessionIDEmpty   = errors.New("session id empty")
	ErrSessionIDInvalid = errors.New("session id invalid")
)

// AcquisitionError reports that a camera or microphone could not be opened.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// TransportError reports a failed or lost call transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DispatchError reports a failed chat request. It is logged only.
type DispatchError struct {
	Status int
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat dispatch: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("chat dispatch: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// QueryError reports a failed speaking-state query. Callers treat it as
// "not speaking".
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("speaking query: %v", e.Err) }

func (e *QueryError) Unwrap() error { return e.Err }
