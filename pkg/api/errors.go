package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the gateway can surface. Callers decide
// presentation; the gateway never folds a failure into sentinel text.
type ErrorKind string

const (
	// KindModelUnavailable covers unknown names, disabled models, and models
	// whose primary credential does not resolve. Never retried.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindAdapterInitFailed covers client construction failures. Not retried
	// within a call; a later call may attempt construction again.
	KindAdapterInitFailed ErrorKind = "adapter_init_failed"

	// KindTransientUpstream covers timeouts, connection resets, and 5xx-class
	// responses. Retried with backoff, then triggers failover.
	KindTransientUpstream ErrorKind = "transient_upstream_failure"

	// KindNoBackupAvailable means the backup index was out of range or the
	// backup credential did not resolve.
	KindNoBackupAvailable ErrorKind = "no_backup_available"

	// KindAllEndpointsExhausted means primary retries and every backup failed.
	KindAllEndpointsExhausted ErrorKind = "all_endpoints_exhausted"

	// KindUpstreamStreamFailed means a streaming call failed before or during
	// emission. Terminal for its FragmentSequence.
	KindUpstreamStreamFailed ErrorKind = "upstream_stream_failed"
)

// Error is the typed gateway error: a kind, the model it concerns, and the
// underlying cause when one exists.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: model %q: %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: model %q", e.Kind, e.Model)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and model. A nil err is fine for kinds that have no
// underlying cause.
func E(kind ErrorKind, model string, err error) *Error {
	return &Error{Kind: kind, Model: model, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a gateway
// error.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
