// File: reactor/reactor_stub.go
//go:build !linux && !windows

package reactor

import "github.com/osipc/localsock/api"

func newReactorInternal() (api.EventReactor, error) {
	return nil, api.NewOpError("reactor", "", api.ErrUnsupported, nil)
}
