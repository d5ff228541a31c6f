// File: server/lifecycle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-lines/internal/session"
)

// disconnect closes sess exactly once: it leaves the poller, the registry
// and then releases the descriptor. Repeat calls are no-ops, so it may be
// called from the loop, a worker or shutdown.
//
// Callers must own the session (a worker job, or the loop while interest is
// NONE, or shutdown after the pool has stopped) because the inbound buffer
// is released here.
func (s *Server) disconnect(sess *session.Session, reason string) {
	closed := sess.Close(func() {
		_ = s.poller.Remove(sess.FD())
		s.registry.Remove(sess.ID())
		if err := sockClose(sess.FD()); err != nil {
			s.cfg.Logger.Printf("[session] close #%d: %v", sess.ID(), err)
		}
	})
	if !closed {
		return
	}
	sess.ReleaseBuffers()
	s.c.closed.Inc()
	if s.cfg.Verbose {
		s.cfg.Logger.Printf("[session] %s (#%d) disconnected after %s: %s",
			sess.RemoteAddr(), sess.ID(), sess.Age().Round(time.Millisecond), reason)
	}
}
