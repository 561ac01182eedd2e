// File: ancillary/ancillary_stub.go
//go:build !linux

//
// The Features gate in the portable entry points rejects unsupported
// backends before these are reached; they exist so the package builds on
// every platform.

package ancillary

import (
	"github.com/osipc/localsock/api"
	"github.com/osipc/localsock/handle"
)

func sendInternal(api.Conn, [][]byte, []*handle.Handle) (int, error) {
	return 0, api.NewOpError("send-handles", "", api.ErrUnsupported, nil)
}

func recvInternal(api.Conn, int, int) (*Message, error) {
	return nil, api.NewOpError("recv-handles", "", api.ErrUnsupported, nil)
}
