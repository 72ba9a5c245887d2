package corsac

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so callers can branch on the category
// without string matching.
type Kind int

const (
	// KindInputTooLarge means the input exceeded the byte-size or pixel-count
	// ceiling. Raised before any decode work; not retryable with the same input.
	KindInputTooLarge Kind = iota + 1

	// KindDecodeFailure means the input could not be decoded (corrupt or
	// unsupported format). Not retryable.
	KindDecodeFailure

	// KindBusy means another invocation is already running on this Pipeline.
	// The caller may retry once the current invocation finishes.
	KindBusy

	// KindEncodeFailure means the encoder rejected its parameters even after
	// one retry at a conservative quality.
	KindEncodeFailure

	// KindResourceExhausted means a buffer size computation overflowed or an
	// allocation-level failure occurred mid-pipeline. Not retryable.
	KindResourceExhausted
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInputTooLarge:
		return "input too large"
	case KindDecodeFailure:
		return "decode failure"
	case KindBusy:
		return "busy"
	case KindEncodeFailure:
		return "encode failure"
	case KindResourceExhausted:
		return "resource exhausted"
	default:
		return "unknown"
	}
}

// Error is the single typed error returned by Pipeline operations.
// Every Error carries a Kind for programmatic handling and a human-readable
// reason. Acceleration problems never appear here: they are absorbed by the
// software fallback.
type Error struct {
	// Kind is the failure category.
	Kind Kind

	// Reason is a human-readable description of what went wrong.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corsac: %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("corsac: %s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// errf builds a *Error with a formatted reason.
func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// wrapErr builds a *Error around an underlying cause.
func wrapErr(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}
