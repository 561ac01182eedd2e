// File: bridge/doc.go
//
// Package bridge adapts the blocking local-socket primitives to a
// cooperative-task model: read, write, accept and dial become context-aware
// suspension points driven by one shared reactor goroutine. Per handle the
// bridge admits at most one pending read and one pending write at a time,
// uniformly on both backends: overlapped I/O mandates it on Windows, and
// the Unix side matches for determinism. Cancellation comes from the
// caller's context; on the completion backend a cancelled operation's
// buffer is held until the OS confirms the abort, so the kernel can never
// write into reclaimed memory.
package bridge
