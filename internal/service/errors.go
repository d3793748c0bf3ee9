package service

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSessionID = errors.New("invalid session id")

type ValidationError struct {
	Fields  []string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "validation failed"
	}
	if len(e.Fields) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// OverflowExhaustedError is returned when every overflow stage failed to fit
// an update under the document ceiling. Err is the first size failure.
type OverflowExhaustedError struct {
	SessionID string
	Err       error
}

func (e *OverflowExhaustedError) Error() string {
	return fmt.Sprintf("session %s: overflow recovery exhausted: %v", e.SessionID, e.Err)
}

func (e *OverflowExhaustedError) Unwrap() error { return e.Err }
