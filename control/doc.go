// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for hioload-lines.
//
// Provides concurrent-safe primitives including:
//   - Named counters updated from the event loop and workers
//   - Gauges sampled on snapshot
//   - Debug probe registration, including process and host memory probes
package control
