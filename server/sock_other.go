//go:build !linux
// +build !linux

// File: server/sock_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub socket layer for platforms without the epoll reactor.

package server

import "github.com/momentics/hioload-lines/api"

func listenTCP(addr string, backlog int) (int, string, error) {
	return -1, "", api.ErrNotSupported
}

func acceptConn(lfd int) (int, string, error) { return -1, "", api.ErrNotSupported }

func sockRead(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func sockWrite(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }

func sockClose(fd int) error { return api.ErrNotSupported }

func isAgain(err error) bool { return false }

func isInterrupted(err error) bool { return false }

func isAcceptExhausted(err error) bool { return false }

func isAcceptRetryable(err error) bool { return false }
