// File: localsocket/doc.go
//
// Package localsocket unifies Windows named pipes and Unix domain sockets
// behind one connection-oriented byte-stream API. Platform quirks (pipe
// instance pooling, overlapped I/O, the Linux abstract namespace, stale
// socket files) stay inside the build-tagged backend files; Listen, Dial,
// Accept, read/write and half-close behave identically on both systems.
// Optional capabilities (peer credentials, ancillary handle transfer) are
// exposed uniformly and fail with api.ErrUnsupported where the platform
// lacks them.
package localsocket
