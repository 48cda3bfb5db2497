package main

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted     = errors.New("game has not started")
	ErrGameOver       = errors.New("game is over")
	ErrWrongPhase     = errors.New("not allowed in this phase")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrUnknownAbility = errors.New("unknown ability")
	ErrUsesExhausted  = errors.New("ability has no uses left")
	ErrBadArgument    = errors.New("invalid argument")
	ErrNotAllowed     = errors.New("not allowed")
)

// UsageError is a rejected request. The session is left untouched.
type UsageError struct {
	Op     string
	Err    error
	Detail string
}

func (e *UsageError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
}

func (e *UsageError) Unwrap() error { return e.Err }

func usageErr(op string, err error, format string, args ...any) error {
	return &UsageError{Op: op, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// InvariantViolation means the catalog and engine state disagree. The round
// is aborted and the session refuses further transitions.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}

func invariant(format string, args ...any) error {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}

// isUsageError is a convenience for handlers that only need the class
func isUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
