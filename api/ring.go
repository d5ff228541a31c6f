// File: api/ring.go
// Author: momentics <momentics@gmail.com>

package api

// Ring is a bounded multi-producer queue. The server uses one as the
// mailbox through which workers hand sessions back to the event loop.
type Ring[T any] interface {
	// Enqueue adds an item; false means the ring is full.
	Enqueue(item T) bool
	// Dequeue removes the oldest item; false means the ring is empty.
	Dequeue() (T, bool)
	Len() int
	Cap() int
}
