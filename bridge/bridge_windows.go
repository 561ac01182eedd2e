// File: bridge/bridge_windows.go
//go:build windows

//
// Completion-model suspension: read/write issue overlapped operations into
// pooled buffers and park until the completion port reports them done. A
// cancelled operation issues CancelIoEx and still waits for the completion
// event before its buffer returns to the pool; releasing earlier would let
// the kernel write into reclaimed memory.

package bridge

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sys/windows"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/localsocket"
	"github.com/osipc/localsock/pool"
	"github.com/osipc/localsock/reactor"
)

const opBufferSize = 64 * 1024

// winOp is one in-flight overlapped operation and the buffer it owns.
type winOp struct {
	ov   reactor.OverlappedOp
	buf  []byte
	done chan api.Event
}

// platformOps tracks pending overlapped operations by completion tag.
type platformOps struct {
	mu      *sync.Mutex
	pending map[uintptr]*winOp
	bufs    *pool.BytePool
}

func newPlatformOps() platformOps {
	return platformOps{
		mu:      &sync.Mutex{},
		pending: make(map[uintptr]*winOp),
		bufs:    pool.NewBytePool(opBufferSize),
	}
}

// complete routes a tagged completion to its operation. Unmatched tags
// belong to operations issued outside the bridge; the caller drops them.
func (p platformOps) complete(ev api.Event) bool {
	p.mu.Lock()
	op, ok := p.pending[ev.Tag]
	if ok {
		delete(p.pending, ev.Tag)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	op.done <- ev
	return true
}

func (p platformOps) add(op *winOp) {
	p.mu.Lock()
	p.pending[op.ov.Tag()] = op
	p.mu.Unlock()
}

func (p platformOps) remove(op *winOp) {
	p.mu.Lock()
	delete(p.pending, op.ov.Tag())
	p.mu.Unlock()
}

// Overlapped handles need no mode switch; registration with the port is all
// the preparation the completion model requires.
func prepareHandle(uintptr) error { return nil }

// restoreHandle refuses: the port association outlives the wrapper, so a
// handle returned to synchronous use would post its completions into the
// bridge's reactor, which would misread the foreign OVERLAPPED.
func restoreHandle(uintptr) error {
	return api.NewOpError("detach", "", api.ErrUnsupported, nil)
}

func (p platformOps) getBuf(n int) []byte {
	if n <= p.bufs.Size() {
		return p.bufs.Get()
	}
	// Oversized one-off; Put drops foreign capacities.
	return make([]byte, n)
}

func (c *AsyncConn) newOp(kind api.EventKind, n int) *winOp {
	return &winOp{
		ov:   reactor.OverlappedOp{Kind: kind},
		buf:  c.b.ops.getBuf(n),
		done: make(chan api.Event, 1),
	}
}

// await parks until the operation completes. On cancellation it requests an
// abort and still consumes the completion before letting the buffer go.
func (c *AsyncConn) await(ctx context.Context, op *winOp) (api.Event, error) {
	select {
	case ev := <-op.done:
		return ev, nil
	case <-ctx.Done():
	case <-c.closedCh:
	case <-c.b.done:
	}

	windows.CancelIoEx(windows.Handle(c.fd), &op.ov.O)
	// The completion (success or ERROR_OPERATION_ABORTED) must be observed
	// before op.buf may be reused.
	ev := <-op.done
	if ev.Err == nil {
		// Raced the cancel and actually finished; deliver the result.
		return ev, nil
	}
	select {
	case <-ctx.Done():
		return api.Event{}, ctx.Err()
	default:
	}
	return api.Event{}, api.NewOpError("io", "", api.ErrClosed, nil)
}

func (c *AsyncConn) readCtx(ctx context.Context, p []byte) (int, error) {
	op := c.newOp(api.EventReadable, len(p))
	defer c.b.ops.bufs.Put(op.buf)

	c.b.ops.add(op)
	err := windows.ReadFile(windows.Handle(c.fd), op.buf[:len(p)], nil, &op.ov.O)
	if err != nil && err != windows.ERROR_IO_PENDING {
		c.b.ops.remove(op)
		if err == windows.ERROR_BROKEN_PIPE {
			return 0, io.EOF
		}
		return 0, api.NewOpError("read", "", api.ErrConnectionReset, err)
	}

	ev, werr := c.await(ctx, op)
	if werr != nil {
		return 0, werr
	}
	if ev.Err != nil {
		if ev.Err == windows.ERROR_BROKEN_PIPE {
			return 0, io.EOF
		}
		return 0, api.NewOpError("read", "", api.ErrConnectionReset, ev.Err)
	}
	if ev.N == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	copy(p, op.buf[:ev.N])
	return ev.N, nil
}

func (c *AsyncConn) writeCtx(ctx context.Context, p []byte) (int, error) {
	op := c.newOp(api.EventWritable, len(p))
	defer c.b.ops.bufs.Put(op.buf)
	n := copy(op.buf[:cap(op.buf)], p)

	c.b.ops.add(op)
	err := windows.WriteFile(windows.Handle(c.fd), op.buf[:n], nil, &op.ov.O)
	if err != nil && err != windows.ERROR_IO_PENDING {
		c.b.ops.remove(op)
		return 0, api.NewOpError("write", "", api.ErrBrokenPipe, err)
	}

	ev, werr := c.await(ctx, op)
	if werr != nil {
		return 0, werr
	}
	if ev.Err != nil {
		return 0, api.NewOpError("write", "", api.ErrBrokenPipe, ev.Err)
	}
	return ev.N, nil
}

// acceptCanceller is satisfied by the named-pipe listener.
type acceptCanceller interface {
	CancelPending()
}

func (al *AsyncListener) attach() error {
	// Accepts ride the synchronous path with CancelIoEx-based interruption;
	// no port registration is needed for the listener itself.
	return nil
}

func (al *AsyncListener) detach() {
	if c, ok := al.l.(acceptCanceller); ok {
		c.CancelPending()
	}
}

type acceptResult struct {
	conn api.Conn
	err  error
}

func (al *AsyncListener) acceptCtx(ctx context.Context) (api.Conn, error) {
	ch := make(chan acceptResult, 1)
	go func() {
		conn, err := al.l.Accept()
		ch <- acceptResult{conn: conn, err: err}
	}()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
	case <-al.closedCh:
	case <-al.b.done:
	}

	if c, ok := al.l.(acceptCanceller); ok {
		c.CancelPending()
	}
	res := <-ch
	if res.err == nil {
		// The connect raced the cancellation; do not leak the instance.
		res.conn.Close()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return nil, api.NewOpError("accept", al.l.Addr(), api.ErrClosed, nil)
}

// DialContext runs the bounded busy-retry dial off-task and abandons it on
// cancellation; a late success is closed, never leaked.
func (b *Bridge) DialContext(ctx context.Context, addr address.Addr, opts *localsocket.DialOptions) (*AsyncConn, error) {
	ch := make(chan acceptResult, 1)
	go func() {
		conn, err := localsocket.Dial(addr, opts)
		ch <- acceptResult{conn: conn, err: err}
	}()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		ac, err := b.WrapConn(res.conn)
		if err != nil {
			res.conn.Close()
			return nil, err
		}
		return ac, nil
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-b.done:
		abandon()
		return nil, api.NewOpError("dial", addr.String(), api.ErrClosed, nil)
	}
}
