// File: api/executor.go
// Author: momentics <momentics@gmail.com>
//
// Executor contract for worker-pool task dispatch.

package api

// Executor abstracts a bounded pool that runs connection jobs.
type Executor interface {
	// Submit schedules task without blocking.
	// Returns ErrQueueFull when the task queue is saturated.
	Submit(task func()) error

	// NumWorkers returns the current number of live workers.
	NumWorkers() int

	// Pending returns the number of queued, not yet started tasks.
	Pending() int

	// Close stops accepting tasks and waits for workers to exit.
	Close()
}
