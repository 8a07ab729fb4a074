package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so that callers can decide how far it propagates.
type Kind string

const (
	KindConfiguration Kind = "configuration" // KindConfiguration is fatal before any session opens.
	KindSessionOpen   Kind = "session_open"  // KindSessionOpen aborts one capability's page loop.
	KindNavigation    Kind = "navigation"    // KindNavigation is a failed page load.
	KindStabilization Kind = "stabilization" // KindStabilization is a failed pre-capture normalization.
	KindScreenshot    Kind = "screenshot"    // KindScreenshot covers capture and artifact persistence.
	KindDiffService   Kind = "diff_service"  // KindDiffService is a malformed or failing visual-diff response.
	KindMismatch      Kind = "mismatch"      // KindMismatch means the visual-diff service reported changes.
	KindTimeout       Kind = "timeout"       // KindTimeout is a bounded wait that ran out.
	KindInternal      Kind = "internal"      // KindInternal is a recovered panic.
)

// ErrTimeout is matched by errors.Is for every bounded wait that expired,
// whether it came from the browser driver or from a poll loop.
var ErrTimeout = errors.New("timed out")

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind and op. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost Kind attached to err, or KindInternal when
// err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	return KindInternal
}

// IsTimeout reports whether err is, or wraps, a bounded wait that expired.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
