// File: localsocket/listener_windows.go
//go:build windows

//
// Named-pipe listener. The OS has no bind/accept pair for pipes: a "bound"
// name is a pool of pipe instances. The listener always keeps one
// unconnected instance alive and provisions the replacement before handing
// out an accepted instance, so a connecting client can never observe a name
// with zero live instances.

package localsocket

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
)

const pipeBufferSize = 64 * 1024

type pipeListener struct {
	addr   address.Addr
	path16 *uint16
	sa     *windows.SecurityAttributes

	mu         sync.Mutex
	next       windows.Handle // provisioned unconnected instance
	hasNext    bool
	pending    windows.Handle // instance with an in-flight ConnectNamedPipe
	hasPending bool
	closed     bool
}

func featuresInternal() api.Features {
	return api.Features{OS: "windows"}
}

func listenInternal(addr address.Addr, _ *ListenOptions) (api.Listener, error) {
	if addr.Kind() != address.KindPipe {
		return nil, api.NewOpError("listen", addr.String(), api.ErrUnsupported, nil)
	}
	path16, err := windows.UTF16PtrFromString(addr.String())
	if err != nil {
		return nil, api.NewOpError("listen", addr.String(), api.ErrInvalidName, err)
	}
	sa, err := currentUserSecurity()
	if err != nil {
		return nil, err
	}
	l := &pipeListener{addr: addr, path16: path16, sa: sa}
	first, err := l.createInstance(true)
	if err != nil {
		// FILE_FLAG_FIRST_PIPE_INSTANCE reports an existing pool as
		// ERROR_ACCESS_DENIED; surface it as the bind collision it is.
		if err == windows.ERROR_ACCESS_DENIED {
			return nil, api.NewOpError("listen", addr.String(), api.ErrAddressInUse, err)
		}
		return nil, wrapWinErr("listen", addr.String(), err, api.ErrPermissionDenied)
	}
	l.next = first
	l.hasNext = true
	logrus.WithField("addr", addr.String()).Debug("localsock: listening")
	return l, nil
}

func (l *pipeListener) createInstance(first bool) (windows.Handle, error) {
	flags := uint32(windows.PIPE_ACCESS_DUPLEX | windows.FILE_FLAG_OVERLAPPED)
	if first {
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	mode := uint32(windows.PIPE_TYPE_BYTE | windows.PIPE_READMODE_BYTE |
		windows.PIPE_WAIT | windows.PIPE_REJECT_REMOTE_CLIENTS)
	return windows.CreateNamedPipe(l.path16, flags, mode,
		windows.PIPE_UNLIMITED_INSTANCES, pipeBufferSize, pipeBufferSize, 0, l.sa)
}

// takeInstance hands out the provisioned instance, creating one on demand
// after an earlier provisioning failure.
func (l *pipeListener) takeInstance() (windows.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, api.NewOpError("accept", l.addr.String(), api.ErrClosed, nil)
	}
	if !l.hasNext {
		h, err := l.createInstance(false)
		if err != nil {
			return 0, wrapWinErr("accept", l.addr.String(), err, api.ErrBrokenListener)
		}
		l.next = h
		l.hasNext = true
	}
	h := l.next
	l.hasNext = false
	l.pending = h
	l.hasPending = true
	return h, nil
}

func (l *pipeListener) clearPending() {
	l.mu.Lock()
	l.hasPending = false
	l.mu.Unlock()
}

// CancelPending aborts an in-flight Accept without closing the listener.
// The aborted accept reports api.ErrClosed or ErrBrokenListener; the next
// Accept provisions a fresh instance and proceeds normally.
func (l *pipeListener) CancelPending() {
	l.mu.Lock()
	if l.hasPending {
		windows.CancelIoEx(l.pending, nil)
	}
	l.mu.Unlock()
}

func (l *pipeListener) Accept() (api.Conn, error) {
	inst, err := l.takeInstance()
	if err != nil {
		return nil, err
	}
	defer l.clearPending()

	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		windows.CloseHandle(inst)
		return nil, wrapWinErr("accept", l.addr.String(), err, api.ErrBrokenListener)
	}
	defer windows.CloseHandle(ev)

	ov := windows.Overlapped{HEvent: ev}
	err = windows.ConnectNamedPipe(inst, &ov)
	switch err {
	case nil, windows.ERROR_PIPE_CONNECTED:
		// Client connected between CreateNamedPipe and ConnectNamedPipe.
	case windows.ERROR_IO_PENDING:
		if _, werr := windows.WaitForSingleObject(ev, windows.INFINITE); werr != nil {
			windows.CancelIoEx(inst, &ov)
			windows.CloseHandle(inst)
			return nil, wrapWinErr("accept", l.addr.String(), werr, api.ErrBrokenListener)
		}
		var done uint32
		if gerr := windows.GetOverlappedResult(inst, &ov, &done, false); gerr != nil {
			windows.CloseHandle(inst)
			if l.isClosed() {
				return nil, api.NewOpError("accept", l.addr.String(), api.ErrClosed, gerr)
			}
			return nil, wrapWinErr("accept", l.addr.String(), gerr, api.ErrBrokenListener)
		}
	default:
		windows.CloseHandle(inst)
		return nil, wrapWinErr("accept", l.addr.String(), err, api.ErrBrokenListener)
	}

	// Provision the successor before returning the accepted instance: the
	// pool must never be observed empty by a connecting client.
	l.mu.Lock()
	if !l.closed && !l.hasNext {
		if nh, nerr := l.createInstance(false); nerr == nil {
			l.next = nh
			l.hasNext = true
		} else {
			// Degraded: the next Accept retries via takeInstance.
			logrus.WithFields(logrus.Fields{"addr": l.addr.String(), "err": nerr}).
				Warn("localsock: could not provision next pipe instance")
		}
	}
	l.mu.Unlock()

	conn, err := newPipeConn(inst, true)
	if err != nil {
		windows.CloseHandle(inst)
		return nil, err
	}
	return conn, nil
}

func (l *pipeListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *pipeListener) Addr() string { return l.addr.String() }

func (l *pipeListener) Fd() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasNext {
		return uintptr(l.next)
	}
	return 0
}

func (l *pipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.hasNext {
		windows.CloseHandle(l.next)
		l.hasNext = false
	}
	if l.hasPending {
		// Aborts the in-flight ConnectNamedPipe; the accept path observes
		// ERROR_OPERATION_ABORTED and reports ErrClosed.
		windows.CancelIoEx(l.pending, nil)
	}
	return nil
}
