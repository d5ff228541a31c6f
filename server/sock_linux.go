//go:build linux
// +build linux

// File: server/sock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking TCP socket operations on Linux.

package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenTCP creates a non-blocking listening socket bound to addr and
// returns it together with the bound address.
func listenTCP(addr string, backlog int) (int, string, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, "", fmt.Errorf("resolve %s: %w", addr, err)
	}

	var (
		family int
		sa     unix.Sockaddr
	)
	if ip4 := tcpAddr.IP.To4(); tcpAddr.IP == nil || ip4 != nil {
		in4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(in4.Addr[:], ip4)
		}
		family, sa = unix.AF_INET, in4
	} else {
		in6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(in6.Addr[:], tcpAddr.IP.To16())
		family, sa = unix.AF_INET6, in6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, "", fmt.Errorf("socket create: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("getsockname: %w", err)
	}
	return fd, sockaddrString(bound), nil
}

// acceptConn accepts one pending connection as a non-blocking socket.
func acceptConn(lfd int) (int, string, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, sockaddrString(sa), nil
}

func sockRead(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// sockWrite never raises SIGPIPE on a reset peer.
func sockWrite(fd int, p []byte) (int, error) {
	n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	if n < 0 {
		n = 0
	}
	return n, err
}

func sockClose(fd int) error {
	return unix.Close(fd)
}

// isAgain reports a would-block condition on a non-blocking socket.
func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// isAcceptExhausted reports descriptor or memory exhaustion on accept.
func isAcceptExhausted(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.ENOMEM)
}

// isAcceptRetryable reports per-connection accept failures that leave the
// listener usable (the peer vanished before accept completed).
func isAcceptRetryable(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EPROTO) || errors.Is(err, unix.EPERM)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}
