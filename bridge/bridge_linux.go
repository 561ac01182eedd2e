// File: bridge/bridge_linux.go
//go:build linux

//
// Readiness-model suspension: attempt the non-blocking syscall, and on
// EAGAIN arm the reactor for one wake and park on the waiter channel.
// Cancellation is local: nothing is pending in the kernel between
// attempts, so dropping the operation needs no OS-level cancel request.

package bridge

import (
	"context"
	"io"

	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/localsocket"
)

// platformOps is unused on the readiness backend; completions only exist on
// the completion model.
type platformOps struct{}

func newPlatformOps() platformOps { return platformOps{} }

func (platformOps) complete(api.Event) bool { return false }

func prepareHandle(fd uintptr) error {
	if err := unix.SetNonblock(int(fd), true); err != nil {
		return api.NewOpError("wrap", "", api.ErrClosed, err)
	}
	return nil
}

func restoreHandle(fd uintptr) error {
	if err := unix.SetNonblock(int(fd), false); err != nil {
		return api.NewOpError("detach", "", api.ErrClosed, err)
	}
	return nil
}

func mapErrno(op string, errno error, fallback error) error {
	kind := fallback
	switch errno {
	case unix.EPIPE:
		kind = api.ErrBrokenPipe
	case unix.ECONNRESET:
		kind = api.ErrConnectionReset
	case unix.ECONNREFUSED:
		kind = api.ErrConnectionRefused
	case unix.ENOENT:
		kind = api.ErrNotFound
	case unix.EBADF:
		kind = api.ErrClosed
	}
	return api.NewOpError(op, "", kind, errno)
}

func (c *AsyncConn) readCtx(ctx context.Context, p []byte) (int, error) {
	for {
		n, err := unix.Read(int(c.fd), p)
		switch err {
		case nil:
			if n == 0 && len(p) > 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if aerr := c.b.r.Arm(c.fd, api.EventReadable); aerr != nil {
				return 0, aerr
			}
			select {
			case <-c.w.rd:
				// Woken; retry the syscall, which also surfaces errors.
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-c.closedCh:
				return 0, api.NewOpError("read", "", api.ErrClosed, nil)
			case <-c.b.done:
				return 0, api.NewOpError("read", "", api.ErrClosed, nil)
			}
		default:
			return 0, mapErrno("read", err, api.ErrConnectionReset)
		}
	}
}

func (c *AsyncConn) writeCtx(ctx context.Context, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(int(c.fd), p, nil, nil, unix.MSG_NOSIGNAL)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if aerr := c.b.r.Arm(c.fd, api.EventWritable); aerr != nil {
				return 0, aerr
			}
			select {
			case <-c.w.wr:
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-c.closedCh:
				return 0, api.NewOpError("write", "", api.ErrClosed, nil)
			case <-c.b.done:
				return 0, api.NewOpError("write", "", api.ErrClosed, nil)
			}
		default:
			return 0, mapErrno("write", err, api.ErrBrokenPipe)
		}
	}
}

func (al *AsyncListener) attach() error {
	fd := al.l.Fd()
	if fd == 0 {
		return api.NewOpError("wrap", al.l.Addr(), api.ErrClosed, nil)
	}
	if err := prepareHandle(fd); err != nil {
		return err
	}
	w, err := al.b.register(fd)
	if err != nil {
		return err
	}
	al.fd = fd
	al.w = w
	return nil
}

func (al *AsyncListener) detach() {
	al.b.unregister(al.fd)
}

func (al *AsyncListener) acceptCtx(ctx context.Context) (api.Conn, error) {
	for {
		nfd, _, err := unix.Accept4(int(al.fd), unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return localsocket.Adopt(uintptr(nfd))
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			if aerr := al.b.r.Arm(al.fd, api.EventReadable); aerr != nil {
				return nil, aerr
			}
			select {
			case <-al.w.rd:
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-al.closedCh:
				return nil, api.NewOpError("accept", al.l.Addr(), api.ErrClosed, nil)
			case <-al.b.done:
				return nil, api.NewOpError("accept", al.l.Addr(), api.ErrClosed, nil)
			}
		case unix.EBADF, unix.EINVAL:
			if al.closed.Load() {
				return nil, api.NewOpError("accept", al.l.Addr(), api.ErrClosed, err)
			}
			return nil, api.NewOpError("accept", al.l.Addr(), api.ErrBrokenListener, err)
		default:
			return nil, mapErrno("accept", err, api.ErrBrokenListener)
		}
	}
}

// DialContext performs a non-blocking connect, suspending on EINPROGRESS
// until the reactor reports writability, and returns the connection already
// wrapped.
func (b *Bridge) DialContext(ctx context.Context, addr address.Addr, _ *localsocket.DialOptions) (*AsyncConn, error) {
	var name string
	switch addr.Kind() {
	case address.KindPath:
		name = addr.Name()
	case address.KindAbstract:
		name = "@" + addr.Name()
	default:
		return nil, api.NewOpError("dial", addr.String(), api.ErrUnsupported, nil)
	}
	sa := &unix.SockaddrUnix{Name: name}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, mapErrno("dial", err, api.ErrConnectionRefused)
	}

	if err := unix.Connect(fd, sa); err != nil {
		if err != unix.EINPROGRESS && err != unix.EAGAIN {
			unix.Close(fd)
			return nil, mapErrno("dial", err, api.ErrConnectionRefused)
		}
		if err := b.waitConnect(ctx, fd); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}

	conn, err := localsocket.Adopt(uintptr(fd))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ac, err := b.WrapConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ac, nil
}

func (b *Bridge) waitConnect(ctx context.Context, fd int) error {
	w, err := b.register(uintptr(fd))
	if err != nil {
		return err
	}
	defer b.unregister(uintptr(fd))

	if err := b.r.Arm(uintptr(fd), api.EventWritable); err != nil {
		return err
	}
	select {
	case <-w.wr:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return api.NewOpError("dial", "", api.ErrClosed, nil)
	}

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return mapErrno("dial", err, api.ErrConnectionRefused)
	}
	if soerr != 0 {
		return mapErrno("dial", unix.Errno(soerr), api.ErrConnectionRefused)
	}
	return nil
}
