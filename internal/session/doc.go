// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection state and the registry that maps connection ids to it.
// A Session is touched by the event loop goroutine (accept, dispatch, re-arm)
// and by exactly one worker at a time (while its interest is withdrawn).
// The Registry is the only structure mutated concurrently by many goroutines.

package session
