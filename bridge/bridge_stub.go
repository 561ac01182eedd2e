// File: bridge/bridge_stub.go
//go:build !linux && !windows

package bridge

import (
	"context"

	"github.com/osipc/localsock/address"
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/localsocket"
)

type platformOps struct{}

func newPlatformOps() platformOps { return platformOps{} }

func (platformOps) complete(api.Event) bool { return false }

func prepareHandle(uintptr) error {
	return api.NewOpError("wrap", "", api.ErrUnsupported, nil)
}

func restoreHandle(uintptr) error {
	return api.NewOpError("detach", "", api.ErrUnsupported, nil)
}

func (c *AsyncConn) readCtx(context.Context, []byte) (int, error) {
	return 0, api.NewOpError("read", "", api.ErrUnsupported, nil)
}

func (c *AsyncConn) writeCtx(context.Context, []byte) (int, error) {
	return 0, api.NewOpError("write", "", api.ErrUnsupported, nil)
}

func (al *AsyncListener) attach() error {
	return api.NewOpError("wrap", "", api.ErrUnsupported, nil)
}

func (al *AsyncListener) detach() {}

func (al *AsyncListener) acceptCtx(context.Context) (api.Conn, error) {
	return nil, api.NewOpError("accept", "", api.ErrUnsupported, nil)
}

func (b *Bridge) DialContext(context.Context, address.Addr, *localsocket.DialOptions) (*AsyncConn, error) {
	return nil, api.NewOpError("dial", "", api.ErrUnsupported, nil)
}
