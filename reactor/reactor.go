// File: reactor/reactor.go
//
// Package reactor provides the notification engine behind the async bridge:
// epoll readiness on Linux, an I/O completion port on Windows, behind the
// shared api.EventReactor contract. The reactor never owns the handles it
// watches and never issues I/O of its own on the readiness model.
package reactor

import "github.com/osipc/localsock/api"

// New creates the reactor implementation for the host platform.
func New() (api.EventReactor, error) {
	return newReactorInternal()
}
