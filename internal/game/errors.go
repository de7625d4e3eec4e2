// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// Code classifies a rejected action or internal failure with a stable
// identifier returned to clients. Codes are part of the wire contract.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeForbidden         Code = "forbidden"
	CodeInvalidTransition Code = "invalid_transition"
	CodeTimeout           Code = "timeout"
	CodeUnavailable       Code = "unavailable"
)

// Error is a caller-facing rejection carrying a stable code. Any operation
// returning an Error guarantees room state was left untouched.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFoundf builds a not_found rejection.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a forbidden rejection.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionf builds an invalid_transition rejection.
func InvalidTransitionf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Unavailablef reports a failed collaborator call. It never aborts the game.
func Unavailablef(format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from err, defaulting to unavailable for
// anything that is not a game error.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeUnavailable
}
