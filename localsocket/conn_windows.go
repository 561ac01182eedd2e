// File: localsocket/conn_windows.go
//go:build windows

//
// Named-pipe stream connection: overlapped ReadFile/WriteFile driven
// synchronously through per-direction events. Pipes have no independent
// half-close; CloseWrite flushes so a following disconnect cannot truncate
// data the peer has not drained yet.

package localsocket

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

// WaitNamedPipeW is not surfaced by x/sys; load it from kernel32 directly.
var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procWaitNamedPipe = modkernel32.NewProc("WaitNamedPipeW")
)

// waitNamedPipe blocks until some instance of the pipe is available for a
// connect, or timeoutMs elapses.
func waitNamedPipe(path16 *uint16, timeoutMs uint32) error {
	r1, _, err := procWaitNamedPipe.Call(
		uintptr(unsafe.Pointer(path16)), uintptr(timeoutMs))
	if r1 == 0 {
		return err
	}
	return nil
}

type pipeConn struct {
	h      *handle.Handle
	server bool // accepted end; owns DisconnectNamedPipe on close

	rdMu sync.Mutex
	rdEv windows.Handle
	wrMu sync.Mutex
	wrEv windows.Handle

	readClosed  atomic.Bool
	writeClosed atomic.Bool
}

func newPipeConn(h windows.Handle, server bool) (*pipeConn, error) {
	rdEv, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, wrapWinErr("accept", "", err, api.ErrBrokenListener)
	}
	wrEv, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		windows.CloseHandle(rdEv)
		return nil, wrapWinErr("accept", "", err, api.ErrBrokenListener)
	}
	return &pipeConn{h: handle.New(uintptr(h)), server: server, rdEv: rdEv, wrEv: wrEv}, nil
}

func adoptInternal(raw uintptr) (api.Conn, error) {
	return newPipeConn(windows.Handle(raw), false)
}

func dialInternal(addr address.Addr, opts *DialOptions) (api.Conn, error) {
	if addr.Kind() != address.KindPipe {
		return nil, api.NewOpError("dial", addr.String(), api.ErrUnsupported, nil)
	}
	path16, err := windows.UTF16PtrFromString(addr.String())
	if err != nil {
		return nil, api.NewOpError("dial", addr.String(), api.ErrInvalidName, err)
	}

	attempts := opts.attempts()
	waitMs := uint32(opts.retryWait() / time.Millisecond)

	// Instances are transiently busy between an accept and the listener's
	// next provisioning cycle; a bounded wait-and-reopen loop rides that
	// out. A name with no pool at all fails immediately as not-found.
	for attempt := 0; attempt < attempts; attempt++ {
		h, err := windows.CreateFile(path16,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0, nil, windows.OPEN_EXISTING,
			windows.FILE_FLAG_OVERLAPPED|windows.SECURITY_SQOS_PRESENT|windows.SECURITY_IDENTIFICATION,
			0)
		if err == nil {
			return newPipeConn(h, false)
		}
		if err != windows.ERROR_PIPE_BUSY {
			return nil, wrapWinErr("dial", addr.String(), err, api.ErrConnectionRefused)
		}
		// Ignore the wait result: a timeout simply spends one attempt.
		_ = waitNamedPipe(path16, waitMs)
	}
	return nil, api.NewOpError("dial", addr.String(), api.ErrTimeout, windows.ERROR_PIPE_BUSY)
}

func (c *pipeConn) raw(op string) (windows.Handle, error) {
	v, ok := c.h.Raw()
	if !ok {
		return 0, api.NewOpError(op, "", api.ErrClosed, nil)
	}
	return windows.Handle(v), nil
}

func (c *pipeConn) Read(p []byte) (int, error) {
	if c.readClosed.Load() {
		return 0, api.NewOpError("read", "", api.ErrClosed, nil)
	}
	c.rdMu.Lock()
	defer c.rdMu.Unlock()
	h, err := c.raw("read")
	if err != nil {
		return 0, err
	}

	ov := windows.Overlapped{HEvent: c.rdEv}
	var done uint32
	err = windows.ReadFile(h, p, &done, &ov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(h, &ov, &done, true)
	}
	switch err {
	case nil:
		if done == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return int(done), nil
	case windows.ERROR_BROKEN_PIPE:
		// Orderly peer disconnect is end-of-stream on the read side.
		return 0, io.EOF
	default:
		return 0, wrapWinErr("read", "", err, api.ErrConnectionReset)
	}
}

func (c *pipeConn) Write(p []byte) (int, error) {
	if c.writeClosed.Load() {
		return 0, api.NewOpError("write", "", api.ErrClosed, nil)
	}
	c.wrMu.Lock()
	defer c.wrMu.Unlock()
	h, err := c.raw("write")
	if err != nil {
		return 0, err
	}

	ov := windows.Overlapped{HEvent: c.wrEv}
	var done uint32
	err = windows.WriteFile(h, p, &done, &ov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(h, &ov, &done, true)
	}
	if err != nil {
		return int(done), wrapWinErr("write", "", err, api.ErrBrokenPipe)
	}
	return int(done), nil
}

func (c *pipeConn) CloseRead() error {
	// No native read-side shutdown for pipe instances; subsequent reads
	// fail fast locally and inbound bytes die with the connection.
	c.readClosed.Store(true)
	return nil
}

func (c *pipeConn) CloseWrite() error {
	if !c.writeClosed.CompareAndSwap(false, true) {
		return nil
	}
	h, err := c.raw("close-write")
	if err != nil {
		return err
	}
	// Flush before any disconnect can happen so buffered outbound bytes
	// reach the peer; the pipe would otherwise discard them silently.
	if err := windows.FlushFileBuffers(h); err != nil {
		return wrapWinErr("close-write", "", err, api.ErrBrokenPipe)
	}
	return nil
}

func (c *pipeConn) PeerCred() (api.PeerCred, error) {
	return api.PeerCred{}, api.NewOpError("peer-cred", "", api.ErrUnsupported, nil)
}

func (c *pipeConn) Features() api.Features { return featuresInternal() }

func (c *pipeConn) Fd() uintptr {
	v, _ := c.h.Raw()
	return v
}

func (c *pipeConn) Close() error {
	c.readClosed.Store(true)
	// Release makes exactly one caller the owner of teardown.
	raw, ok := c.h.Release()
	if !ok {
		return nil
	}
	h := windows.Handle(raw)
	if c.writeClosed.CompareAndSwap(false, true) {
		windows.FlushFileBuffers(h)
	}
	if c.server {
		windows.DisconnectNamedPipe(h)
	}
	err := windows.CloseHandle(h)
	windows.CloseHandle(c.rdEv)
	windows.CloseHandle(c.wrEv)
	return err
}
