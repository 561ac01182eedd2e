// File: localsocket/localsocket.go
//
// Platform-independent entry points. The per-platform files provide
// listenInternal, dialInternal and featuresInternal.

package localsocket

import (
	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
)

// Listen binds addr and returns a listener accepting connections on it.
// Construction is atomic: on error no OS resource survives the call.
func Listen(addr address.Addr, opts *ListenOptions) (api.Listener, error) {
	if addr.IsZero() {
		return nil, api.NewOpError("listen", "", api.ErrInvalidName, nil)
	}
	return listenInternal(addr, opts)
}

// ListenName resolves raw with address.KindAuto and binds it.
func ListenName(raw string, opts *ListenOptions) (api.Listener, error) {
	addr, err := address.Resolve(raw, address.KindAuto)
	if err != nil {
		return nil, err
	}
	return Listen(addr, opts)
}

// Dial connects to the endpoint bound at addr. A missing endpoint fails
// promptly with api.ErrNotFound or api.ErrConnectionRefused, never through a
// timeout path.
func Dial(addr address.Addr, opts *DialOptions) (api.Conn, error) {
	if addr.IsZero() {
		return nil, api.NewOpError("dial", "", api.ErrInvalidName, nil)
	}
	return dialInternal(addr, opts)
}

// DialName resolves raw with address.KindAuto and dials it.
func DialName(raw string, opts *DialOptions) (api.Conn, error) {
	addr, err := address.Resolve(raw, address.KindAuto)
	if err != nil {
		return nil, err
	}
	return Dial(addr, opts)
}

// Adopt takes ownership of an already-connected stream handle, typically
// one received over an ancillary transfer or produced by a non-blocking
// connect, and wraps it as a connection.
func Adopt(raw uintptr) (api.Conn, error) {
	return adoptInternal(raw)
}

// Support reports the capability set of the running platform's backend.
func Support() api.Features {
	return featuresInternal()
}
