package generate

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Cancellation causes recorded on a session's handle.
var (
	ErrStaleSession   = errors.New("document version changed")
	ErrHostCancelled  = errors.New("host cancelled the trigger")
	ErrSessionExpired = errors.New("completion expired")
	ErrSessionEvicted = errors.New("session evicted from registry")
	ErrEngineClosed   = errors.New("engine closed")
)

// ErrTransportCancelled is returned by a Transport that stopped because it was
// asked to, either through its context or by the delta callback.
var ErrTransportCancelled = errors.New("transport cancelled")

// ErrNotConfigured is returned when no endpoint can be built from the config.
var ErrNotConfigured = errors.New("generation endpoint not configured")

// FailureError is a remote-reported failure. Reason is stored verbatim as the
// session's error detail.
type FailureError struct {
	Reason string
	Cause  error
}

// Failed returns a FailureError with the given reason.
func Failed(reason string) error {
	return &FailureError{Reason: reason}
}

func (e *FailureError) Error() string { return e.Reason }

func (e *FailureError) Unwrap() error { return e.Cause }

// isCancellation reports whether a transport error means "cancelled" rather
// than "failed".
func isCancellation(err error) bool {
	return errors.Is(err, ErrTransportCancelled) ||
		errors.Is(err, context.Canceled)
}

// failureReason extracts the error detail recorded for an Errored session.
func failureReason(err error) string {
	var fe *FailureError
	if errors.As(err, &fe) && fe.Reason != "" {
		return fe.Reason
	}
	return err.Error()
}
