// File: server/jobs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker jobs. A job runs while the session has interest NONE, so it is the
// only code touching the socket and the inbound accumulator. Every job ends
// by either disconnecting or posting the next interest to the loop.

package server

import (
	"fmt"

	"github.com/momentics/hioload-lines/api"
	"github.com/momentics/hioload-lines/internal/session"
	"github.com/momentics/hioload-lines/protocol"
)

// outboundHighWater bounds the responses queued before a read job yields.
const outboundHighWater = 1024

func (s *Server) hook(kind JobKind) {
	if s.cfg.JobHook != nil {
		s.cfg.JobHook(kind)
	}
}

// readJob reads until the socket would block, answering complete lines in
// arrival order. Reading pauses early only when the outbound queue passes
// outboundHighWater, so a peer that never reads cannot grow it without bound.
func (s *Server) readJob(sess *session.Session) {
	s.hook(ReadJob)

	bp := s.bufs.GetBuffer()
	defer s.bufs.PutBuffer(bp)
	buf := *bp
	in := sess.Inbound()

	for !sess.Closing() && sess.QueueLen() < outboundHighWater {
		n, err := sockRead(sess.FD(), buf)
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			if isAgain(err) {
				break
			}
			s.disconnect(sess, "read error: "+err.Error())
			return
		}
		if n == 0 {
			reason := "peer closed"
			if left := in.Buffered(); left > 0 {
				reason = fmt.Sprintf("peer closed, %d unterminated bytes dropped", left)
			}
			s.disconnect(sess, reason)
			return
		}
		s.c.bytesIn.Add(int64(n))
		in.Feed(buf[:n])
		if !s.consumeLines(sess) {
			return
		}
	}

	if sess.HasOutbound() {
		s.post(sess, api.InterestWrite)
		return
	}
	s.post(sess, api.InterestRead)
}

// consumeLines executes every complete buffered line. It returns false
// when the session was disconnected.
func (s *Server) consumeLines(sess *session.Session) bool {
	in := sess.Inbound()
	for {
		line, ok, err := in.Next()
		if err != nil {
			s.disconnect(sess, err.Error())
			return false
		}
		if !ok {
			return true
		}
		s.c.requests.Inc()
		if s.cfg.Verbose {
			s.cfg.Logger.Printf("[worker] receive from %s >>> %s", sess.RemoteAddr(), line)
		}

		resp := s.proto.Execute(protocol.ParseLine(line))
		if !sess.Enqueue(protocol.Frame(resp.Text), resp.Close) {
			in.Discard()
			return true
		}
		if resp.Close {
			// Lines after quit are never answered.
			in.Discard()
			return true
		}
	}
}

// writeJob sends one queued response, resuming a partial remainder left by
// a previous job. The quit acknowledgment closes the connection once fully
// sent; otherwise the loop re-arms WRITE while responses remain, else READ.
func (s *Server) writeJob(sess *session.Session) {
	s.hook(WriteJob)

	data, closeAfter, ok := sess.NextWrite()
	if !ok {
		s.post(sess, api.InterestRead)
		return
	}
	size := len(data)
	for {
		n, err := sockWrite(sess.FD(), data)
		if n > 0 {
			s.c.bytesOut.Add(int64(n))
			data = data[n:]
		}
		done := sess.Advance(n)
		if done {
			break
		}
		if err == nil || isInterrupted(err) {
			continue
		}
		if isAgain(err) {
			// Send buffer full: keep the remainder and wait for WRITE readiness.
			s.post(sess, api.InterestWrite)
			return
		}
		s.disconnect(sess, "write error: "+err.Error())
		return
	}

	s.c.responses.Inc()
	if s.cfg.Verbose {
		s.cfg.Logger.Printf("[worker] write to %s >>> %d bytes", sess.RemoteAddr(), size)
	}
	if closeAfter {
		s.disconnect(sess, "quit")
		return
	}
	if sess.HasOutbound() {
		s.post(sess, api.InterestWrite)
		return
	}
	s.post(sess, api.InterestRead)
}
