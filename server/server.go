// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server facade: binds the listener, owns the poller, the worker pool and
// the connection registry, and exposes run/shutdown and runtime stats.

package server

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-lines/affinity"
	"github.com/momentics/hioload-lines/api"
	"github.com/momentics/hioload-lines/control"
	"github.com/momentics/hioload-lines/internal/concurrency"
	"github.com/momentics/hioload-lines/internal/session"
	"github.com/momentics/hioload-lines/pool"
	"github.com/momentics/hioload-lines/protocol"
	"github.com/momentics/hioload-lines/reactor"
)

// listenerToken is the poller token of the listening socket.
// Connection ids start at 1, so it never collides with a session.
const listenerToken uint64 = 0

// rearm asks the event loop to re-register a session with a new interest.
type rearm struct {
	sess     *session.Session
	interest api.Interest
}

// Server is a non-blocking line-protocol TCP server.
type Server struct {
	cfg      *Config
	addr     string
	lfd      int
	poller   api.Poller
	exec     *concurrency.Executor
	registry *session.Registry
	mailbox  *concurrency.LockFreeQueue[rearm]
	proto    *protocol.Executor
	metrics  *control.MetricsRegistry
	debug    *control.DebugProbes
	bufs     *pool.BytePool

	// loop-owned state
	deferred    []waiting
	retryAt     time.Time
	backoff     time.Duration
	acceptPause time.Time
	paused      bool

	running  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	downOnce sync.Once
	quitCh   chan struct{}
	doneCh   chan struct{}

	c counters
}

// counters caches hot-path metric handles.
type counters struct {
	accepted, acceptErrors, closed *control.Counter
	requests, responses            *control.Counter
	bytesIn, bytesOut              *control.Counter
	rejected                       *control.Counter
}

// NewServer binds the listen address and prepares the server.
// A bind or listen failure is the only fatal startup condition.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	for _, o := range opts {
		o(&c)
	}
	normalize(&c)

	lfd, addr, err := listenTCP(c.ListenAddr, c.Backlog)
	if err != nil {
		return nil, api.NewError(api.ErrCodeBind, "listen failed").
			WithContext("addr", c.ListenAddr).Wrap(err)
	}
	poller, err := reactor.New(c.MaxEvents)
	if err != nil {
		sockClose(lfd)
		return nil, api.NewError(api.ErrCodePoller, "poller setup failed").Wrap(err)
	}
	if err := poller.AddListener(lfd, listenerToken); err != nil {
		poller.Close()
		sockClose(lfd)
		return nil, api.NewError(api.ErrCodePoller, "listener registration failed").
			WithContext("addr", addr).Wrap(err)
	}

	s := &Server{
		cfg:      &c,
		addr:     addr,
		lfd:      lfd,
		poller:   poller,
		registry: session.NewRegistry(c.RegistryShards),
		mailbox:  concurrency.NewLockFreeQueue[rearm](c.MailboxSize),
		proto:    &protocol.Executor{Clock: c.Clock, DefaultZone: time.Local},
		metrics:  control.NewMetricsRegistry(),
		debug:    control.NewDebugProbes(),
		bufs:     pool.NewBytePool(c.ReadBuffer),
		quitCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.exec = concurrency.NewExecutor(concurrency.ExecutorConfig{
		MinWorkers: c.MinWorkers,
		MaxWorkers: c.MaxWorkers,
		QueueSize:  c.QueueSize,
		KeepAlive:  c.KeepAlive,
		Logger:     c.Logger,
	})
	s.initMetrics()
	c.Logger.Printf("[server] listening on %s (workers %d..%d, queue %d)",
		addr, c.MinWorkers, c.MaxWorkers, c.QueueSize)
	return s, nil
}

// normalize fills zero values with defaults.
func normalize(c *Config) {
	d := DefaultConfig()
	if c.Backlog <= 0 {
		c.Backlog = d.Backlog
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = d.MinWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = d.MailboxSize
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.AcceptPause <= 0 {
		c.AcceptPause = d.AcceptPause
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = d.ReadBuffer
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = d.MaxLineSize
	}
	if c.RegistryShards <= 0 {
		c.RegistryShards = d.RegistryShards
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
}

func (s *Server) initMetrics() {
	m := s.metrics
	s.c = counters{
		accepted:     m.Counter("connections_accepted"),
		acceptErrors: m.Counter("accept_errors"),
		closed:       m.Counter("connections_closed"),
		requests:     m.Counter("requests"),
		responses:    m.Counter("responses"),
		bytesIn:      m.Counter("bytes_in"),
		bytesOut:     m.Counter("bytes_out"),
		rejected:     m.Counter("jobs_rejected"),
	}
	m.Gauge("connections_active", func() int64 { return int64(s.registry.Len()) })
	m.Gauge("mailbox_pending", func() int64 { return int64(s.mailbox.Len()) })
	m.Gauge("executor_pending", func() int64 { return int64(s.exec.Pending()) })
	m.Gauge("executor_workers", func() int64 { return int64(s.exec.NumWorkers()) })
	m.Gauge("sessions_in_flight", s.sessionsInFlight)

	control.RegisterPlatformProbes(s.debug)
	s.debug.RegisterProbe("server.addr", func() any { return s.addr })
	s.debug.RegisterProbe("pool.read_buffers", func() any { return s.bufs.Allocs() })
	s.debug.RegisterProbe("pool.buffer_size", func() any { return s.bufs.Size() })
}

// sessionsInFlight counts open sessions currently withdrawn from the poller:
// held by a worker, queued in the pool or waiting for pool room.
func (s *Server) sessionsInFlight() int64 {
	var n int64
	for _, sess := range s.registry.Snapshot() {
		if sess.Open() && sess.Interest() == api.InterestNone {
			n++
		}
	}
	return n
}

// Addr returns the bound listen address, useful when listening on port 0.
func (s *Server) Addr() string { return s.addr }

// Debug exposes the probe registry.
func (s *Server) Debug() api.Debug { return s.debug }

// Stats returns a merged snapshot of server metrics, executor counters and
// debug probes.
func (s *Server) Stats() map[string]any {
	out := s.metrics.GetSnapshot()
	for k, v := range s.exec.Stats() {
		out["executor."+k] = v
	}
	for k, v := range s.debug.DumpState() {
		out[k] = v
	}
	return out
}

// Run drives the event loop until ctx is cancelled or Shutdown is called.
// Resources are released before Run returns.
func (s *Server) Run(ctx context.Context) error {
	if s.stopping.Load() {
		return api.ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	defer close(s.doneCh)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-stop:
		}
	}()

	if s.cfg.PinLoop {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinity.SetAffinity(s.cfg.LoopCPU); err != nil {
			s.cfg.Logger.Printf("[loop] cpu pinning disabled: %v", err)
		}
	}

	s.loop()
	s.teardown()
	return nil
}

// Shutdown stops the loop, waits for it up to ctx and releases all
// connections, workers and descriptors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.running.Load() {
		select {
		case <-s.doneCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.teardown()
	return nil
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.quitCh)
		_ = s.poller.Wake()
	})
}

// teardown runs once: workers first so no job touches a released descriptor.
func (s *Server) teardown() {
	s.downOnce.Do(func() {
		s.exec.Close()
		for _, sess := range s.registry.Snapshot() {
			s.disconnect(sess, "server shutdown")
		}
		if !s.paused {
			_ = s.poller.Remove(s.lfd)
		}
		if err := sockClose(s.lfd); err != nil {
			s.cfg.Logger.Printf("[server] close listener: %v", err)
		}
		if err := s.poller.Close(); err != nil {
			s.cfg.Logger.Printf("[server] close poller: %v", err)
		}
		s.cfg.Logger.Printf("[server] stopped (%d accepted, %d requests)",
			s.c.accepted.Load(), s.c.requests.Load())
	})
}
