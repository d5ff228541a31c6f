// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log"

	"github.com/momentics/hioload-lines/protocol"
)

// ServerOption customizes server initialization.
type ServerOption func(*Config)

// WithListenAddr overrides the bind address.
func WithListenAddr(addr string) ServerOption {
	return func(c *Config) {
		c.ListenAddr = addr
	}
}

// WithWorkers sets the minimum and maximum worker counts.
func WithWorkers(min, max int) ServerOption {
	return func(c *Config) {
		c.MinWorkers = min
		c.MaxWorkers = max
	}
}

// WithQueueSize sets the executor task queue capacity.
func WithQueueSize(n int) ServerOption {
	return func(c *Config) {
		c.QueueSize = n
	}
}

// WithGreeting enables the informational line sent on accept.
func WithGreeting(on bool) ServerOption {
	return func(c *Config) {
		c.Greeting = on
	}
}

// WithVerbose enables per-request logging.
func WithVerbose(on bool) ServerOption {
	return func(c *Config) {
		c.Verbose = on
	}
}

// WithLogger replaces the server logger.
func WithLogger(l *log.Logger) ServerOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithClock replaces the clock used by the time command.
func WithClock(clock protocol.Clock) ServerOption {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithMaxLineSize bounds request lines.
func WithMaxLineSize(n int) ServerOption {
	return func(c *Config) {
		c.MaxLineSize = n
	}
}

// WithLoopCPU pins the event loop thread to a logical CPU.
func WithLoopCPU(cpu int) ServerOption {
	return func(c *Config) {
		c.PinLoop = true
		c.LoopCPU = cpu
	}
}

// WithJobHook installs a hook run at the start of every worker job.
// Intended for tests that need to slow workers down.
func WithJobHook(fn func(JobKind)) ServerOption {
	return func(c *Config) {
		c.JobHook = fn
	}
}
