// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness multiplexer behind the server event loop.
// The Linux implementation is epoll based; other platforms get a stub.
package reactor
