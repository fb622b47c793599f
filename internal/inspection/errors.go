// Package inspection - errors.go defines the error taxonomy the lifecycle
// surfaces to callers. Handlers map these onto HTTP statuses; everything else
// propagates as an opaque internal error.
package inspection

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a genuinely missing resource and a resource the
	// caller lacks visibility into. Reads never distinguish the two.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is authenticated but not authorized to
	// perform this mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstreamUnavailable wraps storage provider failures. The caller's
	// request was valid; the provider call failed or timed out.
	ErrUpstreamUnavailable = errors.New("storage provider unavailable")
)

// WrongStateError rejects an operation that is not valid for the inspection's
// current status or lock. It is distinct from ErrNotFound and ErrForbidden so
// clients can tell a locked inspection from a missing or inaccessible one.
type WrongStateError struct {
	Op     string
	Reason string
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func wrongState(op, reason string) error {
	return &WrongStateError{Op: op, Reason: reason}
}

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsWrongState reports whether err is a WrongStateError.
func IsWrongState(err error) bool {
	var ws *WrongStateError
	return errors.As(err, &ws)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
