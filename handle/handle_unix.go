// File: handle/handle_unix.go
//go:build unix

package handle

import "golang.org/x/sys/unix"

// closeRaw closes a Unix file descriptor.
func closeRaw(raw uintptr) error {
	return unix.Close(int(raw))
}
