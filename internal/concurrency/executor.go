// File: internal/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor is a bounded worker pool. MinWorkers goroutines stay alive for the
// executor lifetime; up to MaxWorkers run while the task queue has backlog,
// and surplus workers retire after KeepAlive without work. Submit never
// blocks: a saturated queue is reported to the caller as api.ErrQueueFull.

package concurrency

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-lines/api"
)

var _ api.Executor = (*Executor)(nil)

type TaskFunc func()

// ExecutorConfig sizes the pool.
type ExecutorConfig struct {
	MinWorkers int
	MaxWorkers int
	QueueSize  int
	KeepAlive  time.Duration
	Logger     *log.Logger
}

// Executor manages a pool of worker goroutines.
type Executor struct {
	queue     chan TaskFunc
	min, max  int32
	keepAlive time.Duration
	logger    *log.Logger

	workers atomic.Int32
	idle    atomic.Int32
	closeCh chan struct{}
	closed  atomic.Bool
	mu      sync.Mutex // serializes spawn against Close
	wg      sync.WaitGroup

	// statistics
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// NewExecutor creates an Executor and starts MinWorkers workers.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = runtime.NumCPU()
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxWorkers * 4
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	e := &Executor{
		queue:     make(chan TaskFunc, cfg.QueueSize),
		min:       int32(cfg.MinWorkers),
		max:       int32(cfg.MaxWorkers),
		keepAlive: cfg.KeepAlive,
		logger:    cfg.Logger,
		closeCh:   make(chan struct{}),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		e.spawn()
	}
	return e
}

// Submit enqueues a task without blocking.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return api.ErrExecutorClosed
	}
	select {
	case e.queue <- task:
	default:
		e.rejected.Add(1)
		return api.ErrQueueFull
	}
	e.submitted.Add(1)
	if int(e.idle.Load()) < len(e.queue) {
		e.grow()
	}
	return nil
}

// grow adds a worker when backlog exceeds idle workers and the pool is below max.
func (e *Executor) grow() {
	for {
		n := e.workers.Load()
		if n >= e.max {
			return
		}
		if e.workers.CompareAndSwap(n, n+1) {
			if !e.start() {
				e.workers.Add(-1)
			}
			return
		}
	}
}

func (e *Executor) spawn() {
	e.workers.Add(1)
	if !e.start() {
		e.workers.Add(-1)
	}
}

// start launches a worker goroutine whose slot was already counted.
func (e *Executor) start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return false
	}
	e.wg.Add(1)
	go e.run()
	return true
}

// retire gives up a worker slot if the pool is above its floor.
func (e *Executor) retire() bool {
	for {
		n := e.workers.Load()
		if n <= e.min {
			return false
		}
		if e.workers.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	idle := time.NewTimer(e.keepAlive)
	defer idle.Stop()

	for {
		e.idle.Add(1)
		select {
		case task := <-e.queue:
			if e.idle.Add(-1) == 0 && len(e.queue) > 0 {
				e.grow()
			}
			e.safeExecute(task)
		case <-idle.C:
			e.idle.Add(-1)
			if e.retire() {
				return
			}
		case <-e.closeCh:
			e.idle.Add(-1)
			e.workers.Add(-1)
			return
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(e.keepAlive)
	}
}

func (e *Executor) safeExecute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Printf("[executor] recovered task panic: %v", r)
		}
		e.completed.Add(1)
	}()
	task()
}

// NumWorkers returns the number of live workers.
func (e *Executor) NumWorkers() int {
	return int(e.workers.Load())
}

// Pending returns the number of queued tasks not yet picked by a worker.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Close stops accepting tasks and waits for workers to exit.
// Tasks still queued are discarded.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.mu.Unlock()
		return
	}
	close(e.closeCh)
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	return map[string]int64{
		"submitted_tasks": e.submitted.Load(),
		"completed_tasks": e.completed.Load(),
		"rejected_tasks":  e.rejected.Load(),
		"panicked_tasks":  e.panics.Load(),
		"pending_tasks":   int64(e.Pending()),
		"num_workers":     int64(e.NumWorkers()),
	}
}
