//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/hioload-lines/api"

// New returns api.ErrNotSupported on platforms without epoll.
func New(maxEvents int) (api.Poller, error) {
	return nil, api.ErrNotSupported
}
