// File: handle/handle_stub.go
//go:build !unix && !windows

package handle

import "github.com/osipc/localsock/api"

func closeRaw(uintptr) error {
	return api.NewOpError("close", "", api.ErrUnsupported, nil)
}
