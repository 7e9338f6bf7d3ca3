package circuit

import (
	"errors"
	"fmt"
)

// ErrRendererFatal marks an error from the renderer that leaves the circuit
// unusable. Work units wrap it; the circuit is then faulted and evicted.
var ErrRendererFatal = errors.New("fatal renderer error")

// Error is returned by registry and circuit operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// CircuitID identifies the affected circuit, if any.
	CircuitID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes circuit errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates no live circuit has the requested id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeClosed indicates the circuit was disposed while the caller held it.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeFaulted indicates the renderer failed fatally.
	ErrCodeFaulted ErrorCode = "FAULTED"

	// ErrCodeClientCall indicates the client reported a failed outbound call.
	ErrCodeClientCall ErrorCode = "CLIENT_CALL_FAILED"

	// ErrCodeUnknownCall indicates a completion for an outbound call that is not pending.
	ErrCodeUnknownCall ErrorCode = "UNKNOWN_CALL"
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.CircuitID != "" {
		msg += fmt.Sprintf(" (circuit=%s)", e.CircuitID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, id, format string, args ...any) *Error {
	return &Error{Code: code, CircuitID: id, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsNotFound returns true if err reports an unknown or evicted circuit.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsClosed returns true if err reports a disposed circuit.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }

// IsFaulted returns true if err reports a fatal renderer failure.
func IsFaulted(err error) bool { return hasCode(err, ErrCodeFaulted) }

// IsClientCallError returns true if err reports a failed outbound call.
func IsClientCallError(err error) bool { return hasCode(err, ErrCodeClientCall) }

// IsUnknownCall returns true if err reports a completion with no pending call.
func IsUnknownCall(err error) bool { return hasCode(err, ErrCodeUnknownCall) }
