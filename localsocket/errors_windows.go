// File: localsocket/errors_windows.go
//go:build windows

package localsocket

import (
	"github.com/osipc/localsock/api"
	"golang.org/x/sys/windows"
)

// wrapWinErr translates a Win32 error into the shared taxonomy at the shim
// boundary. Codes without a dedicated category collapse into fallback.
func wrapWinErr(op, addr string, werr error, fallback error) error {
	kind := fallback
	switch werr {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		kind = api.ErrNotFound
	case windows.ERROR_ACCESS_DENIED:
		kind = api.ErrPermissionDenied
	case windows.ERROR_BROKEN_PIPE, windows.ERROR_NO_DATA:
		kind = api.ErrBrokenPipe
	case windows.ERROR_PIPE_NOT_CONNECTED:
		kind = api.ErrConnectionReset
	case windows.ERROR_SEM_TIMEOUT, windows.WAIT_TIMEOUT:
		kind = api.ErrTimeout
	case windows.ERROR_OPERATION_ABORTED, windows.ERROR_INVALID_HANDLE:
		kind = api.ErrClosed
	case windows.ERROR_PIPE_BUSY:
		kind = api.ErrTimeout
	}
	return api.NewOpError(op, addr, kind, werr)
}
