// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session holds the inbound line accumulator, the ordered outbound queue,
// the current readiness interest and the lifecycle flag of one connection.

package session

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-lines/api"
	"github.com/momentics/hioload-lines/protocol"
)

// outbound is one framed response awaiting transmission.
type outbound struct {
	data       []byte
	closeAfter bool
}

// Session is the state of one accepted socket.
type Session struct {
	id        uint64
	fd        int
	remote    string
	createdAt time.Time

	// inbound is owned by the worker holding the session; no lock.
	inbound *protocol.Framer

	mu       sync.Mutex // guards everything below
	out      *queue.Queue
	pending  []byte // unsent remainder of the response being written
	pendFin  bool   // pending is the close-after response
	interest api.Interest
	closing  bool // close-after response queued; later lines are ignored
	closed   bool
}

// New creates a session for an accepted descriptor with READ interest.
func New(id uint64, fd int, remote string, maxLine int) *Session {
	return &Session{
		id:        id,
		fd:        fd,
		remote:    remote,
		createdAt: time.Now(),
		inbound:   protocol.NewFramer(maxLine),
		out:       queue.New(),
		interest:  api.InterestRead,
	}
}

// ID returns the stable connection id.
func (s *Session) ID() uint64 { return s.id }

// FD returns the socket descriptor.
func (s *Session) FD() int { return s.fd }

// RemoteAddr returns the peer address captured at accept time.
func (s *Session) RemoteAddr() string { return s.remote }

// Age returns how long the session has been open.
func (s *Session) Age() time.Duration { return time.Since(s.createdAt) }

// Inbound returns the line accumulator. Only the owning worker may use it.
func (s *Session) Inbound() *protocol.Framer { return s.inbound }

// Enqueue appends a framed response. closeAfter marks the response after
// which the connection is closed; nothing is accepted after it.
func (s *Session) Enqueue(data []byte, closeAfter bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.closing {
		return false
	}
	s.out.Add(outbound{data: data, closeAfter: closeAfter})
	if closeAfter {
		s.closing = true
	}
	return true
}

// Closing reports whether a close-after response has been queued.
func (s *Session) Closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// NextWrite returns the bytes still to be written for the current response,
// popping the next queued response when nothing is in flight.
// ok is false when there is nothing to write.
func (s *Session) NextWrite() (data []byte, closeAfter bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		if s.out.Length() == 0 {
			return nil, false, false
		}
		msg := s.out.Remove().(outbound)
		s.pending = msg.data
		s.pendFin = msg.closeAfter
	}
	return s.pending, s.pendFin, true
}

// Advance records n bytes of the current response as written and reports
// whether the response is now complete.
func (s *Session) Advance(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.pending) {
		s.pending = nil
		s.pendFin = false
		return true
	}
	s.pending = s.pending[n:]
	return false
}

// HasOutbound reports whether any response is queued or partially written.
func (s *Session) HasOutbound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0 || s.out.Length() > 0
}

// QueueLen returns the number of whole responses waiting.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Length()
}

// Interest returns the current readiness interest.
func (s *Session) Interest() api.Interest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interest
}

// Withdraw sets interest to none, handing the session to a worker.
// It fails if the session is closed or already owned.
func (s *Session) Withdraw() (api.Interest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.interest == api.InterestNone {
		return api.InterestNone, false
	}
	prev := s.interest
	s.interest = api.InterestNone
	return prev, true
}

// Arm runs apply and records interest, unless the session is closed.
// apply typically re-registers the descriptor with the poller; holding the
// session lock keeps it from racing with Close releasing the descriptor.
func (s *Session) Arm(interest api.Interest, apply func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrSessionClosed
	}
	if err := apply(); err != nil {
		return err
	}
	s.interest = interest
	return nil
}

// Open reports whether Close has not been called yet.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close marks the session closed and runs release exactly once.
// It returns true for the call that performed the close.
func (s *Session) Close(release func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.interest = api.InterestNone
	if release != nil {
		release()
	}
	for s.out.Length() > 0 {
		s.out.Remove()
	}
	s.pending = nil
	return true
}

// ReleaseBuffers frees the inbound accumulator. Only the owner may call it.
func (s *Session) ReleaseBuffers() {
	s.inbound.Release()
}
