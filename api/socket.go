// File: api/socket.go
//
// Capability-set contracts implemented by each platform backend. The two
// backends (Windows named pipes, Unix domain sockets) are structurally
// incompatible; everything platform-specific stays behind these interfaces.

package api

// Direction selects one half of a duplex stream.
type Direction int

const (
	// DirRead is the inbound half.
	DirRead Direction = iota
	// DirWrite is the outbound half.
	DirWrite
)

func (d Direction) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// Features reports which optional capabilities the running backend carries.
// Absent capabilities fail at call time with ErrUnsupported rather than being
// compiled out, so one generic API stays usable across platforms.
type Features struct {
	// Ancillary reports support for atomic payload+handle transfer.
	Ancillary bool
	// PeerCred reports support for querying peer uid/gid/pid.
	PeerCred bool
	// AbstractNames reports support for the Linux abstract namespace.
	AbstractNames bool
	// HalfClose reports native independent shutdown of one direction.
	// The named-pipe backend emulates write-side close by flushing before
	// disconnect and reports false here.
	HalfClose bool
	// OS names the backend, "unix" or "windows".
	OS string
}

// PeerCred identifies the process on the far end of a connection.
type PeerCred struct {
	UID int
	GID int
	PID int
}

// Listener is a bound endpoint accepting connections.
type Listener interface {
	// Accept blocks until a peer connects and returns the established
	// connection. Fails with ErrBrokenListener if the listening handle was
	// invalidated concurrently; never retries on its own.
	Accept() (Conn, error)

	// Addr returns the bound endpoint in textual form.
	Addr() string

	// Fd exposes the listening OS handle for reactor registration.
	Fd() uintptr

	// Close releases the listening resource. A filesystem socket path is
	// unlinked only if this listener created it.
	Close() error
}

// Conn is one established byte-stream connection owning exactly one OS handle.
//
// A Conn is not safe for fully concurrent use, but its two directions are
// independent: one goroutine may read while another writes.
type Conn interface {
	// Read fills p and returns the byte count. Returns io.EOF at end of
	// stream, ErrClosed after CloseRead/Close, and ErrConnectionReset or
	// ErrBrokenPipe once the peer has gone away.
	Read(p []byte) (int, error)

	// Write sends p, possibly partially; callers loop for full delivery.
	Write(p []byte) (int, error)

	// CloseRead shuts the inbound half. Subsequent reads fail with ErrClosed.
	CloseRead() error

	// CloseWrite shuts the outbound half so the peer observes end-of-stream
	// after draining buffered data. Emulated by flush-then-disconnect where
	// the OS primitive has no independent half-close.
	CloseWrite() error

	// PeerCred queries peer credentials; ErrUnsupported where absent.
	PeerCred() (PeerCred, error)

	// Features reports the backend capability set.
	Features() Features

	// Fd exposes the OS handle for reactor registration and ancillary I/O.
	Fd() uintptr

	// Close releases the handle. Idempotent.
	Close() error
}
