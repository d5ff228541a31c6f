// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for server-level monitoring.
// Counters are registered once and then updated lock-free; gauges are
// sampled when a snapshot is taken.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically updated metric.
type Counter struct {
	v atomic.Int64
}

// Inc adds one.
func (c *Counter) Inc() { c.v.Add(1) }

// Add adds delta.
func (c *Counter) Add(delta int64) { c.v.Add(delta) }

// Load returns the current value.
func (c *Counter) Load() int64 { return c.v.Load() }

// MetricsRegistry holds named counters and gauges.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]func() int64
	started  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]func() int64),
		started:  time.Now(),
	}
}

// Counter returns the counter registered under key, creating it on first use.
func (mr *MetricsRegistry) Counter(key string) *Counter {
	mr.mu.RLock()
	c, ok := mr.counters[key]
	mr.mu.RUnlock()
	if ok {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok = mr.counters[key]; !ok {
		c = &Counter{}
		mr.counters[key] = c
	}
	return c
}

// Gauge registers a sampled metric.
func (mr *MetricsRegistry) Gauge(key string, fn func() int64) {
	mr.mu.Lock()
	mr.gauges[key] = fn
	mr.mu.Unlock()
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.counters)+len(mr.gauges)+1)
	for k, c := range mr.counters {
		out[k] = c.Load()
	}
	for k, fn := range mr.gauges {
		out[k] = fn()
	}
	out["uptime_seconds"] = int64(time.Since(mr.started).Seconds())
	return out
}
