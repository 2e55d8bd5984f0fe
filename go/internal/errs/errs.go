// Package errs contains the error taxonomy shared by the synchronizers and the dispatcher.
package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTargetNotInMeeting indicates a nudge target is absent or has left the meeting.
	ErrTargetNotInMeeting = errors.New("target not in meeting")

	// ErrInvalidCommand indicates an unknown verb or an undecodable frame.
	ErrInvalidCommand = errors.New("invalid command")
)

// Wire reasons sent back to the requesting connection.
const (
	ReasonInvalid            = "invalid"
	ReasonNotFound           = "not_found"
	ReasonTargetNotInMeeting = "target_not_in_meeting"
	ReasonCooldown           = "cooldown"
	ReasonConflict           = "conflict"
	ReasonServerError        = "server_error"
)

// ValidationError is a malformed command payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for a field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is a missing target or item. Reason is the wire reason.
type NotFoundError struct {
	Reason string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// CooldownError is an active rate limit window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown for %s", e.Remaining)
}

// PersistenceError wraps a store failure. In-memory state is left untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it is nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// ConflictError reports a client acting on a stale version.
type ConflictError struct {
	Expected int
	Current  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stale version %d, current is %d", e.Expected, e.Current)
}

// Reason maps an error to the reason string delivered in a rejection.
func Reason(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		cooldown   *CooldownError
		conflict   *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation), errors.Is(err, ErrInvalidCommand):
		return ReasonInvalid
	case errors.As(err, &cooldown):
		return ReasonCooldown
	case errors.As(err, &conflict):
		return ReasonConflict
	case errors.As(err, &notFound):
		if notFound.Reason != "" {
			return notFound.Reason
		}
		return ReasonNotFound
	case errors.Is(err, ErrTargetNotInMeeting):
		return ReasonTargetNotInMeeting
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	default:
		return ReasonServerError
	}
}

// RemainingMs returns the cooldown remaining in milliseconds, or 0.
func RemainingMs(err error) int64 {
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		return cooldown.Remaining.Milliseconds()
	}
	return 0
}
