package wire

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation is matched by every decode failure.
var ErrProtocolViolation = errors.New("render batch protocol violation")

// ProtocolError reports malformed batch bytes: a truncated buffer, an offset
// outside the buffer, an unknown edit or frame tag, or a dangling string index.
type ProtocolError struct {
	// Offset is the byte position that failed validation, or -1.
	Offset int

	// Message is a human-readable description.
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at byte %d", e.Message, e.Offset)
	}
	return e.Message
}

// Is makes errors.Is(err, ErrProtocolViolation) hold for any ProtocolError.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func violation(offset int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Offset: offset, Message: fmt.Sprintf(format, args...)}
}
