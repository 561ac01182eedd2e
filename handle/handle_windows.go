// File: handle/handle_windows.go
//go:build windows

package handle

import "golang.org/x/sys/windows"

// closeRaw closes a Windows kernel handle.
func closeRaw(raw uintptr) error {
	return windows.CloseHandle(windows.Handle(raw))
}
