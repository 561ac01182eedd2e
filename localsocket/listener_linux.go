// File: localsocket/listener_linux.go
//go:build linux

//
// Unix-domain socket listener: socket -> bind -> listen, filesystem path
// ownership tracking, optional stale-socket reclaim.

package localsocket

import (
	"sync/atomic"

	"github.com/phayes/permbits"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

type unixListener struct {
	h        *handle.Handle
	addr     address.Addr
	ownsPath bool // this bind created the filesystem entry
	closed   atomic.Bool
}

func featuresInternal() api.Features {
	return api.Features{
		Ancillary:     true,
		PeerCred:      true,
		AbstractNames: true,
		HalfClose:     true,
		OS:            "unix",
	}
}

// sockaddrOf maps an address variant onto a sockaddr_un. x/sys encodes a
// leading '@' as the abstract-namespace NUL.
func sockaddrOf(addr address.Addr) (*unix.SockaddrUnix, error) {
	switch addr.Kind() {
	case address.KindPath:
		return &unix.SockaddrUnix{Name: addr.Name()}, nil
	case address.KindAbstract:
		return &unix.SockaddrUnix{Name: "@" + addr.Name()}, nil
	default:
		return nil, api.NewOpError("resolve", addr.String(), api.ErrUnsupported, nil)
	}
}

func listenInternal(addr address.Addr, opts *ListenOptions) (api.Listener, error) {
	sa, err := sockaddrOf(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, wrapErrno("listen", addr.String(), err, api.ErrPermissionDenied)
	}

	if err := unix.Bind(fd, sa); err != nil {
		if err == unix.EADDRINUSE && opts.reclaimStale() && addr.Kind() == address.KindPath {
			err = reclaimAndRebind(fd, sa, addr)
		}
		if err != nil {
			unix.Close(fd)
			return nil, wrapErrno("listen", addr.String(), err, api.ErrAddressInUse)
		}
	}

	if err := unix.Listen(fd, opts.backlog()); err != nil {
		unix.Close(fd)
		if addr.Kind() == address.KindPath {
			unix.Unlink(addr.Name())
		}
		return nil, wrapErrno("listen", addr.String(), err, api.ErrAddressInUse)
	}

	if addr.Kind() == address.KindPath && opts != nil && opts.Permissions != 0 {
		if err := permbits.Chmod(addr.Name(), opts.Permissions); err != nil {
			unix.Close(fd)
			unix.Unlink(addr.Name())
			return nil, api.NewOpError("listen", addr.String(), api.ErrPermissionDenied, err)
		}
	}

	logrus.WithFields(logrus.Fields{"addr": addr.String(), "fd": fd}).Debug("localsock: listening")
	return &unixListener{
		h:        handle.New(uintptr(fd)),
		addr:     addr,
		ownsPath: addr.Kind() == address.KindPath,
	}, nil
}

// reclaimAndRebind probes whether the colliding path is a live endpoint.
// Only a refused probe marks the path stale; anything else keeps the
// original EADDRINUSE. The unlink/rebind pair can race a concurrent
// recreation of the same path; that race is documented, not eliminated.
func reclaimAndRebind(fd int, sa *unix.SockaddrUnix, addr address.Addr) error {
	probe, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return unix.EADDRINUSE
	}
	err = unix.Connect(probe, sa)
	unix.Close(probe)
	if err != unix.ECONNREFUSED {
		return unix.EADDRINUSE
	}
	if err := unix.Unlink(addr.Name()); err != nil && err != unix.ENOENT {
		return unix.EADDRINUSE
	}
	logrus.WithField("addr", addr.String()).Debug("localsock: reclaimed stale socket path")
	return unix.Bind(fd, sa)
}

func (l *unixListener) Accept() (api.Conn, error) {
	for {
		raw, ok := l.h.Raw()
		if !ok {
			return nil, api.NewOpError("accept", l.addr.String(), api.ErrClosed, nil)
		}
		nfd, _, err := unix.Accept4(int(raw), unix.SOCK_CLOEXEC)
		if err == nil {
			return newUnixConn(nfd), nil
		}
		switch err {
		case unix.EINTR, unix.ECONNABORTED:
			// Transient: the attempt never reached userspace, retrying
			// drops nothing.
			continue
		case unix.EBADF, unix.EINVAL:
			if l.closed.Load() {
				return nil, api.NewOpError("accept", l.addr.String(), api.ErrClosed, err)
			}
			return nil, api.NewOpError("accept", l.addr.String(), api.ErrBrokenListener, err)
		default:
			return nil, wrapErrno("accept", l.addr.String(), err, api.ErrBrokenListener)
		}
	}
}

func (l *unixListener) Addr() string { return l.addr.String() }

func (l *unixListener) Fd() uintptr {
	raw, _ := l.h.Raw()
	return raw
}

func (l *unixListener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	// A blocked accept does not wake on close alone; shutdown forces it out
	// with EINVAL first.
	if raw, ok := l.h.Raw(); ok {
		unix.Shutdown(int(raw), unix.SHUT_RD)
	}
	err := l.h.Close()
	if l.ownsPath {
		if uerr := unix.Unlink(l.addr.Name()); uerr != nil && uerr != unix.ENOENT {
			logrus.WithFields(logrus.Fields{"addr": l.addr.String(), "err": uerr}).
				Warn("localsock: could not unlink socket path")
		}
	}
	return err
}
