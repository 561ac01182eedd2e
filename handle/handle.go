// File: handle/handle.go
//
// Single-owner wrapper around a raw OS resource descriptor. A Handle is
// either live or spent: Close spends it by closing the descriptor, Release
// spends it by moving the descriptor out. There is no implicit duplication,
// so use-after-close and double-close collapse into one checkable state.

package handle

import (
	"sync/atomic"

	"github.com/osipc/localsock/api"
)

const spent = -1

// Handle owns one OS descriptor (socket fd or pipe handle). Construct with
// New; do not use the zero value.
type Handle struct {
	raw atomic.Int64
}

// New takes ownership of raw. The caller must not close raw afterwards.
func New(raw uintptr) *Handle {
	h := &Handle{}
	h.raw.Store(int64(raw))
	return h
}

// Raw returns the descriptor for immediate syscall use without transferring
// ownership. The second return is false once the handle is spent; callers
// must not retain the value past the handle's lifetime.
func (h *Handle) Raw() (uintptr, bool) {
	v := h.raw.Load()
	if v == spent {
		return 0, false
	}
	return uintptr(v), true
}

// Valid reports whether the handle still owns a descriptor.
func (h *Handle) Valid() bool {
	return h.raw.Load() != spent
}

// Release moves the descriptor out, leaving the handle spent. The caller
// becomes the sole owner and is responsible for closing it.
func (h *Handle) Release() (uintptr, bool) {
	v := h.raw.Swap(spent)
	if v == spent {
		return 0, false
	}
	return uintptr(v), true
}

// Close closes the descriptor. Safe to call more than once; every call after
// the first (or after Release) fails with api.ErrClosed without touching the
// OS.
func (h *Handle) Close() error {
	v := h.raw.Swap(spent)
	if v == spent {
		return api.NewOpError("close", "", api.ErrClosed, nil)
	}
	return closeRaw(uintptr(v))
}
