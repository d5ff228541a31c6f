package server

import (
	"log"
	"os"
	"time"

	"github.com/momentics/hioload-lines/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr     string        // TCP bind address, e.g. ":8080"
	Backlog        int           // listen(2) backlog
	MinWorkers     int           // workers kept alive
	MaxWorkers     int           // upper bound on workers under backlog
	QueueSize      int           // bounded executor task queue
	KeepAlive      time.Duration // idle time before a surplus worker exits
	MailboxSize    int           // capacity of the worker -> loop re-arm mailbox
	MaxEvents      int           // readiness events handled per wait
	PollTimeout    time.Duration // upper bound on a single readiness wait
	RetryBackoff   time.Duration // first retry interval for jobs the pool had no room for
	AcceptPause    time.Duration // accept pause after descriptor exhaustion
	ReadBuffer     int           // scratch buffer size for socket reads
	MaxLineSize    int           // longest accepted request line
	RegistryShards int           // shards of the connection registry
	Greeting       bool          // send "Hello <peer>.." on accept
	Verbose        bool          // log every request and response
	PinLoop        bool          // pin the event loop thread to LoopCPU
	LoopCPU        int           // logical CPU used when PinLoop is set
	Logger         *log.Logger
	Clock          protocol.Clock

	// JobHook, when set, runs at the start of every worker job.
	JobHook func(kind JobKind)
}

// JobKind names the two worker job types.
type JobKind int

const (
	ReadJob JobKind = iota
	WriteJob
)

func (k JobKind) String() string {
	if k == WriteJob {
		return "write"
	}
	return "read"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		Backlog:        1024,
		MinWorkers:     3,
		MaxWorkers:     5,
		QueueSize:      100,
		KeepAlive:      time.Second,
		MailboxSize:    4096,
		MaxEvents:      256,
		PollTimeout:    50 * time.Millisecond,
		RetryBackoff:   time.Millisecond,
		AcceptPause:    100 * time.Millisecond,
		ReadBuffer:     4096,
		MaxLineSize:    protocol.DefaultMaxLineSize,
		RegistryShards: 16,
		Logger:         log.New(os.Stderr, "hioload-lines ", log.LstdFlags),
		Clock:          protocol.SystemClock{},
	}
}
