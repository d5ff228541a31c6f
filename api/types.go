// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// Interest is the set of readiness events a connection is registered for.
// InterestNone means a worker owns the connection exclusively.
type Interest uint8

const (
	InterestNone Interest = iota
	InterestRead
	InterestWrite
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	default:
		return "none"
	}
}

// ReadyEvent is a single readiness notification reported by a Poller.
type ReadyEvent struct {
	Token    uint64 // opaque registration token (connection id)
	Readable bool
	Writable bool
	HangUp   bool // peer hang-up or socket error
}
