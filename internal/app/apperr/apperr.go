// Package apperr defines the error taxonomy surfaced to command handlers.
package apperr

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConnection marks failures to join or keep a voice connection.
	ErrConnection = errors.New("voice connection failed")
	// ErrResolution marks failures to turn a source reference into a playable stream.
	ErrResolution = errors.New("stream resolution failed")
	// ErrPrecondition marks commands issued in a state where they do not apply.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInternal marks unexpected failures.
	ErrInternal = errors.New("internal error")
)

// Kind is the classification of an error.
type Kind int

const (
	KindNone Kind = iota
	KindPrecondition
	KindConnection
	KindResolution
	KindInternal
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPrecondition:
		return "precondition"
	case KindConnection:
		return "connection"
	case KindResolution:
		return "resolution"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Classify maps err to a Kind. Unmarked errors are internal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrResolution):
		return KindResolution
	case errors.Is(err, context.DeadlineExceeded):
		return KindConnection
	default:
		return KindInternal
	}
}

// Precondition returns an error marked as ErrPrecondition carrying msg as its
// user-facing hint.
func Precondition(msg string) error {
	return errors.WithHint(errors.Mark(errors.New(msg), ErrPrecondition), msg)
}

// Connection marks err as ErrConnection.
func Connection(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrConnection)
}

// Resolution marks err as ErrResolution.
func Resolution(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResolution)
}

// Internal marks err as ErrInternal.
func Internal(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInternal)
}

// UserMessage returns the message to show an end user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if hint := errors.FlattenHints(err); hint != "" {
		return hint
	}
	switch Classify(err) {
	case KindConnection:
		return "Could not connect to the voice channel. Please try again."
	case KindResolution:
		return "Could not find or load that audio."
	case KindPrecondition:
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
