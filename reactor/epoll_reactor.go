//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-lines/api"
	"golang.org/x/sys/unix"
)

// wakeToken identifies the eventfd used to interrupt Wait.
const wakeToken = ^uint64(0)

// epollReactor implements api.Poller using Linux epoll.
type epollReactor struct {
	epfd   int                // epoll file descriptor
	wakeFd int                // eventfd registered for wake-ups
	woken  atomic.Bool        // coalesces concurrent Wake calls
	raw    []unix.EpollEvent  // reused by the single waiting goroutine
}

// New creates an epoll poller able to report up to maxEvents per Wait.
func New(maxEvents int) (api.Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	r := &epollReactor{
		epfd:   epfd,
		wakeFd: wfd,
		raw:    make([]unix.EpollEvent, maxEvents),
	}
	ev := makeEvent(wakeToken, unix.EPOLLIN)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &ev); err != nil {
		unix.Close(wfd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return r, nil
}

// makeEvent packs the 64-bit token into the Fd/Pad pair of the epoll data union.
func makeEvent(token uint64, events uint32) unix.EpollEvent {
	return unix.EpollEvent{
		Events: events,
		Fd:     int32(uint32(token)),
		Pad:    int32(uint32(token >> 32)),
	}
}

func eventToken(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

func interestMask(interest api.Interest) uint32 {
	switch interest {
	case api.InterestRead:
		return unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT
	case api.InterestWrite:
		return unix.EPOLLOUT | unix.EPOLLONESHOT
	default:
		return unix.EPOLLONESHOT
	}
}

// AddListener registers a listening socket, level-triggered and persistent.
func (r *epollReactor) AddListener(fd int, token uint64) error {
	ev := makeEvent(token, unix.EPOLLIN)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add listener: %w", err)
	}
	return nil
}

// Add registers a connection descriptor armed one-shot with interest.
func (r *epollReactor) Add(fd int, token uint64, interest api.Interest) error {
	ev := makeEvent(token, interestMask(interest))
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Modify re-arms a one-shot descriptor.
func (r *epollReactor) Modify(fd int, token uint64, interest api.Interest) error {
	ev := makeEvent(token, interestMask(interest))
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove removes a descriptor from the epoll watch list.
func (r *epollReactor) Remove(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeout for events. timeout < 0 blocks indefinitely.
func (r *epollReactor) Wait(events []api.ReadyEvent, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	max := len(events)
	if max > len(r.raw) {
		max = len(r.raw)
	}
	n, err := unix.EpollWait(r.epfd, r.raw[:max], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal - normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		ev := &r.raw[i]
		token := eventToken(ev)
		if token == wakeToken {
			r.drainWake()
			continue
		}
		events[out] = api.ReadyEvent{
			Token:    token,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			HangUp:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
		out++
	}
	return out, nil
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFd, buf[:]); err != nil {
			break
		}
	}
	r.woken.Store(false)
}

// Wake interrupts Wait. Calls made while a wake-up is pending are coalesced.
func (r *epollReactor) Wake() error {
	if !r.woken.CompareAndSwap(false, true) {
		return nil
	}
	one := [8]byte{1}
	if _, err := unix.Write(r.wakeFd, one[:]); err != nil && err != unix.EAGAIN {
		r.woken.Store(false)
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close releases the epoll and eventfd descriptors.
func (r *epollReactor) Close() error {
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}
