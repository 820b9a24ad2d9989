package protocol

import (
	"errors"
	"fmt"
	"io"
)

// eofError is an early EOF with its own message. It unwraps to
// io.ErrUnexpectedEOF so callers can match on either.
type eofError struct {
	msg string
}

func (e *eofError) Error() string {
	return e.msg
}

func (e *eofError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

var (
	// ErrPrologueEOF is returned when the peer hangs up before we could
	// tell which handshake it speaks.
	ErrPrologueEOF error = &eofError{"connection closed before rsync negotiation prologue was determined"}

	// ErrLegacyLineEOF is returned when the peer hangs up part way through
	// a legacy daemon line. It is distinct from a malformed greeting.
	ErrLegacyLineEOF error = &eofError{"EOF while reading legacy rsync daemon line"}

	ErrLineTooLong = errors.New("legacy rsync daemon line exceeds the maximum length")
)

// BufferTooSmallError is returned when a caller supplied destination cannot
// hold the bytes being drained. Nothing is consumed when it is returned.
type BufferTooSmallError struct {
	Required  int
	Available int
}

func (e *BufferTooSmallError) Missing() int {
	return e.Required - e.Available
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("buffered negotiation bytes need %d bytes but destination only has %d (%d missing)",
		e.Required, e.Available, e.Missing())
}

// MalformedGreetingError is returned for legacy lines that don't look like an
// @RSYNCD: greeting.
type MalformedGreetingError struct {
	Line string
}

func (e *MalformedGreetingError) Error() string {
	return fmt.Sprintf("malformed legacy rsync daemon greeting: %q", e.Line)
}
