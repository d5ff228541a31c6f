// File: cmd/hioload-lines/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-lines line-protocol server.
// Serves echo/time/quit over TCP until SIGINT or SIGTERM, then closes every
// connection and exits. With -stats the runtime counters are printed
// periodically.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/momentics/hioload-lines/server"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "TCP listen address")
	flag.IntVar(&cfg.MinWorkers, "min-workers", cfg.MinWorkers, "workers kept alive")
	flag.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "maximum workers under load")
	flag.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "worker task queue capacity")
	flag.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "idle time before a surplus worker exits")
	flag.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "readiness wait timeout")
	flag.IntVar(&cfg.MaxLineSize, "max-line", cfg.MaxLineSize, "longest accepted request line in bytes")
	flag.BoolVar(&cfg.Greeting, "greeting", cfg.Greeting, "send a greeting line on connect")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "log every request and response")
	loopCPU := flag.Int("loop-cpu", -1, "pin the event loop thread to this CPU (-1 disables)")
	statsEvery := flag.Duration("stats", 0, "print runtime stats at this interval (0 disables)")
	flag.Parse()
	if *loopCPU >= 0 {
		cfg.PinLoop, cfg.LoopCPU = true, *loopCPU
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *statsEvery > 0 {
		go reportStats(ctx, srv, *statsEvery)
	}

	fmt.Printf("hioload-lines listening on %s\n", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	fmt.Println("Server stopped")
}

// reportStats prints a sorted stats line until ctx ends.
func reportStats(ctx context.Context, srv *server.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := srv.Stats()
			keys := make([]string, 0, len(st))
			for k := range st {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var b strings.Builder
			for _, k := range keys {
				fmt.Fprintf(&b, "%s=%v ", k, st[k])
			}
			log.Printf("[stats] %s", strings.TrimSpace(b.String()))
		}
	}
}
