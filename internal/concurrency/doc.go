// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-lines: the bounded worker executor that
// runs connection read/write jobs, and the lock-free queue used as the
// event loop mailbox.
package concurrency
