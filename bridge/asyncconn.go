// File: bridge/asyncconn.go
//
// Async wrapper around one connection. The exported methods enforce the
// single-pending-operation contract; the platform files implement the
// actual suspension.

package bridge

import (
	"context"
	"sync/atomic"

	"github.com/osipc/localsock/api"
)

// AsyncConn drives one connection through the bridge. After wrapping, the
// underlying connection must not be used directly until Detach.
type AsyncConn struct {
	b    *Bridge
	conn api.Conn
	fd   uintptr
	w    *fdWaiter

	rdBusy atomic.Bool
	wrBusy atomic.Bool

	closed   atomic.Bool
	closedCh chan struct{}
}

// WrapConn registers conn's handle with the bridge's reactor and returns
// its async wrapper.
func (b *Bridge) WrapConn(conn api.Conn) (*AsyncConn, error) {
	fd := conn.Fd()
	if fd == 0 {
		return nil, api.NewOpError("wrap", "", api.ErrClosed, nil)
	}
	if err := prepareHandle(fd); err != nil {
		return nil, err
	}
	w, err := b.register(fd)
	if err != nil {
		return nil, err
	}
	return &AsyncConn{
		b:        b,
		conn:     conn,
		fd:       fd,
		w:        w,
		closedCh: make(chan struct{}),
	}, nil
}

// acquire claims one direction or fails fast: a second concurrent
// operation on the same direction never queues behind the first.
func acquire(busy *atomic.Bool, op string) error {
	if !busy.CompareAndSwap(false, true) {
		return api.NewOpError(op, "", api.ErrConcurrentOperation, nil)
	}
	return nil
}

// ReadContext reads into p, suspending until data, end-of-stream, error, or
// ctx cancellation. At most one read may be pending at a time.
func (c *AsyncConn) ReadContext(ctx context.Context, p []byte) (int, error) {
	if c.closed.Load() {
		return 0, api.NewOpError("read", "", api.ErrClosed, nil)
	}
	if err := acquire(&c.rdBusy, "read"); err != nil {
		return 0, err
	}
	defer c.rdBusy.Store(false)
	return c.readCtx(ctx, p)
}

// WriteContext writes p, possibly partially, suspending until progress or
// ctx cancellation. At most one write may be pending at a time.
func (c *AsyncConn) WriteContext(ctx context.Context, p []byte) (int, error) {
	if c.closed.Load() {
		return 0, api.NewOpError("write", "", api.ErrClosed, nil)
	}
	if err := acquire(&c.wrBusy, "write"); err != nil {
		return 0, err
	}
	defer c.wrBusy.Store(false)
	return c.writeCtx(ctx, p)
}

// CloseWrite forwards the half-close to the underlying connection.
func (c *AsyncConn) CloseWrite() error { return c.conn.CloseWrite() }

// Features reports the underlying backend capability set.
func (c *AsyncConn) Features() api.Features { return c.conn.Features() }

// Detach unregisters the handle from the reactor and returns the underlying
// connection to synchronous use. The wrapper is dead afterwards. On the
// completion backend Detach fails with api.ErrUnsupported: a completion-port
// association cannot be revoked, so a detached handle's synchronous I/O
// would keep posting completions into the bridge's reactor.
func (c *AsyncConn) Detach() (api.Conn, error) {
	// Probe the platform restore first so a refusal leaves the wrapper
	// usable rather than spent.
	if err := restoreHandle(c.fd); err != nil {
		return nil, err
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil, api.NewOpError("detach", "", api.ErrClosed, nil)
	}
	close(c.closedCh)
	c.b.unregister(c.fd)
	return c.conn, nil
}

// Close tears down the wrapper and closes the underlying connection.
// Pending operations observe api.ErrClosed or the OS abort, never a hang.
func (c *AsyncConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closedCh)
	c.b.unregister(c.fd)
	return c.conn.Close()
}
