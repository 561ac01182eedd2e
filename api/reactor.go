// File: api/reactor.go
//
// Contract between the async bridge and the platform reactor. The bridge
// needs only suspend/resume plumbing from the host: register a handle, get
// exactly one wake per armed operation, deliver a cancellation request.

package api

// EventKind classifies a reactor wake.
type EventKind int

const (
	// EventReadable wakes a pending read (readiness model) or completes an
	// inbound transfer (completion model).
	EventReadable EventKind = 1 << iota
	// EventWritable is the outbound counterpart of EventReadable.
	EventWritable
	// EventError wakes both directions; the next syscall surfaces the error.
	EventError
)

// Event is one readiness or completion notification.
type Event struct {
	// Fd is the handle the event belongs to.
	Fd uintptr
	// Kind says which direction(s) woke.
	Kind EventKind
	// N is the transferred byte count for completion-model reactors,
	// zero for readiness-model reactors.
	N int
	// Tag identifies the specific pending operation for completion-model
	// reactors, zero for readiness-model reactors.
	Tag uintptr
	// Err carries a completion failure, nil otherwise.
	Err error
}

// EventReactor multiplexes handle events for the async bridge, implemented
// by epoll on Linux and an I/O completion port on Windows.
type EventReactor interface {
	// Register associates a handle with the reactor. A handle is registered
	// at most once for its lifetime.
	Register(fd uintptr) error

	// Arm requests exactly one wake for the given direction of fd.
	// Completion-model reactors ignore Arm; the wake is produced by the
	// overlapped operation itself.
	Arm(fd uintptr, kind EventKind) error

	// Unregister detaches the handle. Pending wakes for it are dropped.
	Unregister(fd uintptr) error

	// Wait blocks until events arrive and appends up to cap(out) of them.
	Wait(out []Event) (int, error)

	// Wakeup unblocks a concurrent Wait without delivering handle events.
	Wakeup() error

	// Close tears the reactor down. Registered handles are not closed.
	Close() error
}
