// File: reactor/iocp_reactor.go
//go:build windows

//
// Windows completion reactor. Overlapped operations issued by the bridge
// carry their own wake: associating a pipe handle with the port makes every
// ReadFile/WriteFile completion surface in Wait. The OVERLAPPED pointer
// travels back as the event tag so the bridge can match completions to the
// operations (and buffers) it has in flight.

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/osipc/localsock/api"
)

// OverlappedOp is the OVERLAPPED the bridge must embed in each operation it
// issues against a reactor-registered handle. The embedded struct must stay
// first so the kernel pointer and the container coincide.
type OverlappedOp struct {
	O    windows.Overlapped
	Kind api.EventKind
}

// Tag returns the completion tag Wait will report for this operation.
func (op *OverlappedOp) Tag() uintptr {
	return uintptr(unsafe.Pointer(&op.O))
}

const wakeKey = ^uintptr(0)

type iocpReactor struct {
	port windows.Handle

	mu         sync.Mutex
	registered map[uintptr]struct{}
}

func newReactorInternal() (api.EventReactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, api.NewOpError("reactor", "", api.ErrUnsupported, err)
	}
	return &iocpReactor{
		port:       port,
		registered: make(map[uintptr]struct{}),
	}, nil
}

func (r *iocpReactor) Register(fd uintptr) error {
	// Completion key is the handle itself; tags disambiguate operations.
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), r.port, uintptr(fd), 0)
	if err != nil {
		return api.NewOpError("reactor-register", "", api.ErrBrokenListener, err)
	}
	r.mu.Lock()
	r.registered[fd] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Arm is a no-op: on the completion model the overlapped operation itself
// is the armed interest.
func (r *iocpReactor) Arm(uintptr, api.EventKind) error { return nil }

func (r *iocpReactor) Unregister(fd uintptr) error {
	// A port association cannot be revoked; dropping the bookkeeping entry
	// is enough because completions for closed handles stop arriving once
	// their pending operations have drained.
	r.mu.Lock()
	delete(r.registered, fd)
	r.mu.Unlock()
	return nil
}

func (r *iocpReactor) Wait(out []api.Event) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	var (
		bytes uint32
		key   uintptr
		ov    *windows.Overlapped
	)
	err := windows.GetQueuedCompletionStatus(r.port, &bytes, &key, &ov, windows.INFINITE)
	if ov == nil {
		if key == wakeKey {
			return 0, nil
		}
		if err != nil {
			return 0, api.NewOpError("reactor-wait", "", api.ErrClosed, err)
		}
		return 0, nil
	}

	op := (*OverlappedOp)(unsafe.Pointer(ov))
	ev := api.Event{
		Fd:   key,
		Kind: op.Kind,
		N:    int(bytes),
		Tag:  uintptr(unsafe.Pointer(ov)),
	}
	if err != nil {
		// Completion with failure: deliver it tagged so the owner can
		// observe cancellation and release the operation's buffer.
		ev.Err = err
		ev.Kind |= api.EventError
	}
	out[0] = ev
	return 1, nil
}

func (r *iocpReactor) Wakeup() error {
	return windows.PostQueuedCompletionStatus(r.port, 0, wakeKey, nil)
}

func (r *iocpReactor) Close() error {
	return windows.CloseHandle(r.port)
}
