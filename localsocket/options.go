// File: localsocket/options.go
//
// Listen/dial tuning knobs. Zero values select the documented defaults, so
// both option structs may be nil.

package localsocket

import (
	"time"

	"github.com/phayes/permbits"
)

// Default policy values. The dial retry pair bounds the Windows pipe-busy
// loop; it is a fixed, deterministic budget, never an unbounded wait.
const (
	// DefaultBacklog is the Unix listen(2) backlog.
	DefaultBacklog = 128

	// DefaultDialAttempts bounds how many times Dial retries a transiently
	// busy named pipe before failing with api.ErrTimeout.
	DefaultDialAttempts = 10

	// DefaultDialRetryWait is the per-attempt wait budget of the retry loop.
	DefaultDialRetryWait = 100 * time.Millisecond
)

// ListenOptions tunes Listen.
type ListenOptions struct {
	// Backlog caps pending kernel-queued connects on Unix; ignored by the
	// named-pipe backend, which pools instances instead. 0 means
	// DefaultBacklog.
	Backlog int

	// Permissions, when nonzero, is applied to the bound filesystem socket
	// path right after bind. Ignored for abstract names and pipes, which
	// have no permission bits.
	Permissions permbits.PermissionBits

	// ReclaimStale makes bind treat an existing socket path that no process
	// is listening on as leftover state: the path is unlinked and bind is
	// retried once. Racing another process recreating the same path is a
	// documented hazard of the probe, not eliminated.
	ReclaimStale bool
}

func (o *ListenOptions) backlog() int {
	if o == nil || o.Backlog <= 0 {
		return DefaultBacklog
	}
	return o.Backlog
}

func (o *ListenOptions) reclaimStale() bool {
	return o != nil && o.ReclaimStale
}

// DialOptions tunes Dial.
type DialOptions struct {
	// Attempts bounds the named-pipe busy-retry loop. 0 means
	// DefaultDialAttempts. The Unix backend connects exactly once; the
	// kernel backlog absorbs pending connects.
	Attempts int

	// RetryWait is the per-attempt wait budget. 0 means DefaultDialRetryWait.
	RetryWait time.Duration
}

func (o *DialOptions) attempts() int {
	if o == nil || o.Attempts <= 0 {
		return DefaultDialAttempts
	}
	return o.Attempts
}

func (o *DialOptions) retryWait() time.Duration {
	if o == nil || o.RetryWait <= 0 {
		return DefaultDialRetryWait
	}
	return o.RetryWait
}
