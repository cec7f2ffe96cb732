package ai

import (
	"errors"
	"fmt"
)

// ErrMissingFields is returned when a request lacks messages, a model or a
// credential.
var ErrMissingFields = errors.New("Missing required fields")

// StatusError is a non-success answer from a provider or gateway.
type StatusError struct {
	Provider string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
