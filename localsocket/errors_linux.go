// File: localsocket/errors_linux.go
//go:build linux

package localsocket

import (
	"github.com/osipc/localsock/api"
	"golang.org/x/sys/unix"
)

// wrapErrno translates an errno into the shared taxonomy at the shim
// boundary. Errnos without a dedicated category collapse into fallback so
// every failure leaving this package matches exactly one sentinel.
func wrapErrno(op, addr string, errno error, fallback error) error {
	kind := fallback
	switch errno {
	case unix.ENOENT:
		kind = api.ErrNotFound
	case unix.EADDRINUSE:
		kind = api.ErrAddressInUse
	case unix.EACCES, unix.EPERM:
		kind = api.ErrPermissionDenied
	case unix.ECONNREFUSED:
		kind = api.ErrConnectionRefused
	case unix.EPIPE, unix.ESHUTDOWN:
		kind = api.ErrBrokenPipe
	case unix.ECONNRESET, unix.ECONNABORTED:
		kind = api.ErrConnectionReset
	case unix.ETIMEDOUT, unix.EAGAIN:
		kind = api.ErrTimeout
	case unix.EBADF:
		kind = api.ErrClosed
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.EOPNOTSUPP:
		kind = api.ErrUnsupported
	}
	return api.NewOpError(op, addr, kind, errno)
}
