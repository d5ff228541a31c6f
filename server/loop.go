// File: server/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The event loop is the only goroutine that accepts connections and applies
// interest changes to the poller. Workers hand sessions back through the
// mailbox; the loop re-arms them.

package server

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/momentics/hioload-lines/api"
	"github.com/momentics/hioload-lines/internal/session"
	"github.com/momentics/hioload-lines/protocol"
)

func (s *Server) loop() {
	events := make([]api.ReadyEvent, s.cfg.MaxEvents)
	log := s.cfg.Logger
	log.Printf("[loop] started")
	defer log.Printf("[loop] stopped")

	for {
		select {
		case <-s.quitCh:
			return
		default:
		}

		n, err := s.poller.Wait(events, s.waitTimeout())
		if err != nil {
			if s.stopping.Load() {
				return
			}
			log.Printf("[loop] wait: %v", err)
			time.Sleep(s.cfg.RetryBackoff)
			continue
		}

		s.drainMailbox()
		s.resumeAccept()

		for i := 0; i < n; i++ {
			ev := events[i]
			if ev.Token == listenerToken {
				s.acceptAll()
				continue
			}
			s.dispatch(ev)
		}
		s.retryDeferred()
	}
}

// waitTimeout shortens the wait while jobs wait for pool room.
func (s *Server) waitTimeout() time.Duration {
	timeout := s.cfg.PollTimeout
	if len(s.deferred) > 0 {
		if d := time.Until(s.retryAt); d < timeout {
			timeout = d
		}
	}
	if s.paused {
		if d := time.Until(s.acceptPause); d < timeout {
			timeout = d
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	return timeout
}

func (s *Server) drainMailbox() {
	for {
		r, ok := s.mailbox.Dequeue()
		if !ok {
			return
		}
		s.arm(r.sess, r.interest)
	}
}

// arm re-registers sess with the poller. A closed session is left alone.
func (s *Server) arm(sess *session.Session, interest api.Interest) {
	err := sess.Arm(interest, func() error {
		return s.poller.Modify(sess.FD(), sess.ID(), interest)
	})
	if err == nil || errors.Is(err, api.ErrSessionClosed) {
		return
	}
	s.cfg.Logger.Printf("[loop] rearm %s for %s: %v", interest, sess.RemoteAddr(), err)
	s.disconnect(sess, "rearm failed")
}

// dispatch hands a ready session to a worker. Events for sessions that
// are gone or already owned by a worker are stale and skipped.
func (s *Server) dispatch(ev api.ReadyEvent) {
	sess, ok := s.registry.Get(ev.Token)
	if !ok {
		return
	}
	prev, ok := sess.Withdraw()
	if !ok {
		return
	}
	kind := ReadJob
	if prev == api.InterestWrite && !ev.HangUp {
		kind = WriteJob
	}
	s.submit(sess, kind)
}

// waiting is a job the pool had no room for. Its session stays withdrawn
// until the job is submitted.
type waiting struct {
	sess *session.Session
	kind JobKind
}

func (s *Server) job(sess *session.Session, kind JobKind) func() {
	if kind == WriteJob {
		return func() { s.writeJob(sess) }
	}
	return func() { s.readJob(sess) }
}

// submit hands a job to the pool. While earlier jobs wait for room, a new
// one queues behind them so waiting sessions are served in arrival order.
func (s *Server) submit(sess *session.Session, kind JobKind) {
	if len(s.deferred) == 0 {
		err := s.exec.Submit(s.job(sess, kind))
		if err == nil {
			return
		}
		s.c.rejected.Inc()
		if errors.Is(err, api.ErrExecutorClosed) {
			return
		}
		s.backoff = s.cfg.RetryBackoff
		s.retryAt = time.Now().Add(s.backoff)
	}
	s.deferred = append(s.deferred, waiting{sess: sess, kind: kind})
}

// retryDeferred submits waiting jobs oldest first, no more than the pool
// queue has room for. While no room frees up the retry interval doubles,
// capped at PollTimeout; workers posting back wake the loop earlier.
func (s *Server) retryDeferred() {
	if len(s.deferred) == 0 {
		return
	}
	room := s.cfg.QueueSize - s.exec.Pending()
	n := 0
	for n < len(s.deferred) && n < room {
		w := s.deferred[n]
		if err := s.exec.Submit(s.job(w.sess, w.kind)); err != nil {
			s.c.rejected.Inc()
			break
		}
		n++
	}

	now := time.Now()
	switch {
	case n > 0:
		rest := copy(s.deferred, s.deferred[n:])
		clear(s.deferred[rest:])
		s.deferred = s.deferred[:rest]
		s.backoff = s.cfg.RetryBackoff
		s.retryAt = now.Add(s.backoff)
	case !now.Before(s.retryAt):
		s.backoff = min(2*s.backoff, s.cfg.PollTimeout)
		s.retryAt = now.Add(s.backoff)
	}
}

// post is called by workers to return a session to the loop.
func (s *Server) post(sess *session.Session, interest api.Interest) {
	r := rearm{sess: sess, interest: interest}
	for !s.mailbox.Enqueue(r) {
		if s.stopping.Load() {
			return
		}
		runtime.Gosched()
	}
	if err := s.poller.Wake(); err != nil && !s.stopping.Load() {
		s.cfg.Logger.Printf("[worker] wake loop: %v", err)
	}
}

// acceptAll drains the listener backlog.
func (s *Server) acceptAll() {
	for {
		fd, remote, err := acceptConn(s.lfd)
		if err == nil {
			s.register(fd, remote)
			continue
		}
		switch {
		case isAgain(err):
			return
		case isAcceptRetryable(err):
			s.c.acceptErrors.Inc()
			continue
		case isAcceptExhausted(err):
			s.c.acceptErrors.Inc()
			s.cfg.Logger.Printf("[loop] accept: %v; pausing accept for %s", err, s.cfg.AcceptPause)
			s.pauseAccept()
			return
		default:
			s.c.acceptErrors.Inc()
			s.cfg.Logger.Printf("[loop] accept: %v", err)
			return
		}
	}
}

// pauseAccept stops listener notifications; the level-triggered listener
// would otherwise spin while descriptors are exhausted.
func (s *Server) pauseAccept() {
	if err := s.poller.Remove(s.lfd); err != nil {
		s.cfg.Logger.Printf("[loop] pause accept: %v", err)
		return
	}
	s.paused = true
	s.acceptPause = time.Now().Add(s.cfg.AcceptPause)
}

func (s *Server) resumeAccept() {
	if !s.paused || time.Now().Before(s.acceptPause) {
		return
	}
	if err := s.poller.AddListener(s.lfd, listenerToken); err != nil {
		s.cfg.Logger.Printf("[loop] resume accept: %v", err)
		s.acceptPause = time.Now().Add(s.cfg.AcceptPause)
		return
	}
	s.paused = false
}

// register creates the session for an accepted descriptor and arms it.
func (s *Server) register(fd int, remote string) {
	id := s.registry.NextID()
	sess := session.New(id, fd, remote, s.cfg.MaxLineSize)

	interest := api.InterestRead
	if s.cfg.Greeting {
		sess.Enqueue(protocol.Frame(fmt.Sprintf("Hello %s..", remote)), false)
		interest = api.InterestWrite
	}

	s.registry.Add(sess)
	err := sess.Arm(interest, func() error {
		return s.poller.Add(fd, id, interest)
	})
	if err != nil {
		s.cfg.Logger.Printf("[loop] register %s: %v", remote, err)
		s.c.acceptErrors.Inc()
		s.registry.Remove(id)
		sess.Close(func() { sockClose(fd) })
		return
	}
	s.c.accepted.Inc()
	if s.cfg.Verbose {
		s.cfg.Logger.Printf("[loop] accepted %s as #%d", remote, id)
	}
}
