// File: localsocket/conn_linux.go
//go:build linux

//
// Unix-domain stream connection: blocking read/write over the raw fd,
// native per-direction shutdown, SO_PEERCRED credential query.

package localsocket

import (
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

type unixConn struct {
	h           *handle.Handle
	readClosed  atomic.Bool
	writeClosed atomic.Bool
}

func newUnixConn(fd int) *unixConn {
	return &unixConn{h: handle.New(uintptr(fd))}
}

func adoptInternal(raw uintptr) (api.Conn, error) {
	return newUnixConn(int(raw)), nil
}

func dialInternal(addr address.Addr, _ *DialOptions) (api.Conn, error) {
	sa, err := sockaddrOf(addr)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, wrapErrno("dial", addr.String(), err, api.ErrPermissionDenied)
	}
	// One connect, no retry loop: pending connects sit in the kernel
	// backlog, and a dead endpoint reports ENOENT/ECONNREFUSED immediately.
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, wrapErrno("dial", addr.String(), err, api.ErrConnectionRefused)
	}
	return newUnixConn(fd), nil
}

func (c *unixConn) fd(op string) (int, error) {
	raw, ok := c.h.Raw()
	if !ok {
		return 0, api.NewOpError(op, "", api.ErrClosed, nil)
	}
	return int(raw), nil
}

func (c *unixConn) Read(p []byte) (int, error) {
	if c.readClosed.Load() {
		return 0, api.NewOpError("read", "", api.ErrClosed, nil)
	}
	fd, err := c.fd("read")
	if err != nil {
		return 0, err
	}
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, wrapErrno("read", "", err, api.ErrConnectionReset)
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (c *unixConn) Write(p []byte) (int, error) {
	if c.writeClosed.Load() {
		return 0, api.NewOpError("write", "", api.ErrClosed, nil)
	}
	fd, err := c.fd("write")
	if err != nil {
		return 0, err
	}
	for {
		// MSG_NOSIGNAL turns a peer-closed write into EPIPE instead of a
		// process signal.
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, wrapErrno("write", "", err, api.ErrBrokenPipe)
		}
		return n, nil
	}
}

func (c *unixConn) CloseRead() error {
	if !c.readClosed.CompareAndSwap(false, true) {
		return nil
	}
	fd, err := c.fd("close-read")
	if err != nil {
		return err
	}
	if err := unix.Shutdown(fd, unix.SHUT_RD); err != nil {
		return wrapErrno("close-read", "", err, api.ErrConnectionReset)
	}
	return nil
}

func (c *unixConn) CloseWrite() error {
	if !c.writeClosed.CompareAndSwap(false, true) {
		return nil
	}
	fd, err := c.fd("close-write")
	if err != nil {
		return err
	}
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		return wrapErrno("close-write", "", err, api.ErrBrokenPipe)
	}
	return nil
}

func (c *unixConn) PeerCred() (api.PeerCred, error) {
	fd, err := c.fd("peer-cred")
	if err != nil {
		return api.PeerCred{}, err
	}
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return api.PeerCred{}, wrapErrno("peer-cred", "", err, api.ErrUnsupported)
	}
	return api.PeerCred{
		UID: int(ucred.Uid),
		GID: int(ucred.Gid),
		PID: int(ucred.Pid),
	}, nil
}

func (c *unixConn) Features() api.Features { return featuresInternal() }

func (c *unixConn) Fd() uintptr {
	raw, _ := c.h.Raw()
	return raw
}

func (c *unixConn) Close() error {
	c.readClosed.Store(true)
	c.writeClosed.Store(true)
	err := c.h.Close()
	if errors.Is(err, api.ErrClosed) {
		return nil
	}
	return err
}
