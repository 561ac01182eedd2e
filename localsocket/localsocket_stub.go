// File: localsocket/localsocket_stub.go
//go:build !linux && !windows

package localsocket

import (
	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
)

func featuresInternal() api.Features {
	return api.Features{OS: "unsupported"}
}

func listenInternal(addr address.Addr, _ *ListenOptions) (api.Listener, error) {
	return nil, api.NewOpError("listen", addr.String(), api.ErrUnsupported, nil)
}

func dialInternal(addr address.Addr, _ *DialOptions) (api.Conn, error) {
	return nil, api.NewOpError("dial", addr.String(), api.ErrUnsupported, nil)
}

func adoptInternal(uintptr) (api.Conn, error) {
	return nil, api.NewOpError("adopt", "", api.ErrUnsupported, nil)
}
