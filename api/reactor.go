// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the readiness multiplexer
// that drives the server event loop.

package api

import "time"

// Poller multiplexes readiness across many file descriptors.
// Connection descriptors are armed one-shot: a delivered event disables the
// descriptor until Modify re-arms it.
type Poller interface {
	// AddListener registers a listening socket for persistent accept readiness.
	AddListener(fd int, token uint64) error

	// Add registers a connection descriptor with the given interest.
	Add(fd int, token uint64, interest Interest) error

	// Modify re-arms a connection descriptor with a new interest.
	Modify(fd int, token uint64, interest Interest) error

	// Remove drops a descriptor from the interest set.
	Remove(fd int) error

	// Wait blocks up to timeout and fills events. Wake-ups are consumed internally.
	Wait(events []ReadyEvent, timeout time.Duration) (int, error)

	// Wake interrupts a concurrent Wait.
	Wake() error

	// Close releases the poller backend.
	Close() error
}
