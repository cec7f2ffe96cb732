package chat

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnknownModel      = errors.New("unknown model")
	ErrInvalidConfig     = errors.New("invalid model config")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMissingCredential = errors.New("no API key configured for this session")
	ErrRequestInFlight   = errors.New("a request is already in flight for this session")
	// ErrNoState is returned by a Persister that has nothing stored yet.
	ErrNoState = errors.New("no persisted state")
)

// PersistError wraps a durable storage failure.
type PersistError struct {
	Op  string // "load", "decode", "encode", "save"
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
