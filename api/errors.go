// File: api/errors.go
//
// Error taxonomy shared by every backend. OS-level failures are translated
// into exactly one of these sentinels at the platform-shim boundary, so
// callers can branch with errors.Is without knowing which backend produced
// the failure.

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors. Every error returned by this module matches exactly one
// of these under errors.Is.
var (
	// ErrNotFound reports that no endpoint is bound at the target address.
	ErrNotFound = errors.New("endpoint not found")

	// ErrAddressInUse reports that the target address already has a live binding.
	ErrAddressInUse = errors.New("address already in use")

	// ErrPermissionDenied reports that the OS refused access to the endpoint.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConnectionRefused reports that the endpoint exists but refused the connection.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrBrokenPipe reports a write against a peer that has closed.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrConnectionReset reports that the peer aborted the connection.
	ErrConnectionReset = errors.New("connection reset by peer")

	// ErrTimeout reports that a bounded operation exhausted its time budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidName reports that a raw name violates the address rules of
	// the requested kind.
	ErrInvalidName = errors.New("invalid endpoint name")

	// ErrAncillaryOverflow reports that an inbound handle set exceeded the
	// receiver's limit. Nothing is delivered; the transfer fails whole.
	ErrAncillaryOverflow = errors.New("ancillary handle set overflows receive buffer")

	// ErrUnsupported reports that the running platform lacks the requested
	// capability. Query Features before relying on optional operations.
	ErrUnsupported = errors.New("capability not supported on this platform")

	// ErrConcurrentOperation reports a second in-flight operation on the same
	// direction of one handle. The bridge admits at most one pending read and
	// one pending write per handle.
	ErrConcurrentOperation = errors.New("operation already pending on this direction")

	// ErrBrokenListener reports that the listening handle was invalidated
	// while an accept was outstanding.
	ErrBrokenListener = errors.New("listener handle broken")

	// ErrClosed reports use of a connection or listener after the relevant
	// direction was shut down. Returned immediately, never after blocking.
	ErrClosed = errors.New("endpoint is closed")
)

// OpError decorates a sentinel with the failing operation and address so a
// log line names the endpoint while errors.Is still matches the sentinel.
type OpError struct {
	Op   string // "listen", "accept", "dial", "read", "write", ...
	Addr string // textual endpoint, may be empty for connected-stream ops
	Kind error  // one of the sentinels above
	Err  error  // underlying OS error, may be nil
}

func (e *OpError) Error() string {
	s := e.Op
	if e.Addr != "" {
		s = fmt.Sprintf("%s %s", e.Op, e.Addr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", s, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", s, e.Kind)
}

// Unwrap exposes the sentinel, not the raw OS error: callers match taxonomy,
// the OS detail stays in the message.
func (e *OpError) Unwrap() error { return e.Kind }

// NewOpError builds an OpError around a taxonomy sentinel.
func NewOpError(op, addr string, kind, cause error) *OpError {
	return &OpError{Op: op, Addr: addr, Kind: kind, Err: cause}
}
