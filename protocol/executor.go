// File: protocol/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "time"

// Clock supplies the current instant to the time command.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Executor maps requests to responses. It holds no connection state and is
// safe for concurrent use.
type Executor struct {
	Clock Clock
	// DefaultZone is used when a time request names an unresolvable zone.
	// Nil means time.Local.
	DefaultZone *time.Location
}

// NewExecutor returns an Executor on the system clock and local zone.
func NewExecutor() *Executor {
	return &Executor{Clock: SystemClock{}, DefaultZone: time.Local}
}

// Execute runs a single request.
func (e *Executor) Execute(req Request) Response {
	switch req.Command {
	case CmdEcho:
		return Response{Text: req.Argument}
	case CmdTime:
		return Response{Text: e.FormatTime(req.Argument)}
	case CmdQuit:
		return Response{Text: QuitAck, Close: true}
	default:
		return Response{Text: UsageMessage}
	}
}

// FormatTime renders the current instant in zoneID, or in the default zone
// when zoneID does not resolve.
func (e *Executor) FormatTime(zoneID string) string {
	loc, ok := ResolveZone(zoneID)
	if !ok {
		loc = e.DefaultZone
		if loc == nil {
			loc = time.Local
		}
	}
	return e.now().In(loc).Format(TimeLayout)
}

func (e *Executor) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}
