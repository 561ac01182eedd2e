// File: bridge/asynclistener.go
//
// Async wrapper around one listener: accept becomes a suspension point
// with the same single-pending-operation discipline as connection reads.

package bridge

import (
	"context"
	"sync/atomic"

	"github.com/osipc/localsock/api"
)

// AsyncListener drives accepts through the bridge.
type AsyncListener struct {
	b *Bridge
	l api.Listener

	acBusy   atomic.Bool
	closed   atomic.Bool
	closedCh chan struct{}

	// platform state (waiter on the readiness backend)
	w  *fdWaiter
	fd uintptr
}

// WrapListener registers l's handle with the bridge's reactor.
func (b *Bridge) WrapListener(l api.Listener) (*AsyncListener, error) {
	al := &AsyncListener{b: b, l: l, closedCh: make(chan struct{})}
	if err := al.attach(); err != nil {
		return nil, err
	}
	return al, nil
}

// AcceptContext suspends until a peer connects or ctx is cancelled. The
// returned connection is synchronous; wrap it with WrapConn for async use.
// At most one accept may be pending per listener.
func (al *AsyncListener) AcceptContext(ctx context.Context) (api.Conn, error) {
	if al.closed.Load() {
		return nil, api.NewOpError("accept", al.l.Addr(), api.ErrClosed, nil)
	}
	if err := acquire(&al.acBusy, "accept"); err != nil {
		return nil, err
	}
	defer al.acBusy.Store(false)
	return al.acceptCtx(ctx)
}

// Addr returns the bound endpoint of the wrapped listener.
func (al *AsyncListener) Addr() string { return al.l.Addr() }

// Close tears down the wrapper and closes the wrapped listener.
func (al *AsyncListener) Close() error {
	if !al.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(al.closedCh)
	al.detach()
	return al.l.Close()
}
