// File: api/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime introspection exposed by the server.

package api

// Debug evaluates named probes on demand. Server.Stats merges its output
// with the metric counters.
type Debug interface {
	// DumpState evaluates every registered probe.
	DumpState() map[string]any

	// RegisterProbe inserts or replaces a named probe.
	RegisterProbe(name string, fn func() any)
}
