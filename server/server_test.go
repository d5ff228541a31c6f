//go:build linux
// +build linux

package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-lines/api"
	"github.com/momentics/hioload-lines/internal/session"
	"github.com/momentics/hioload-lines/protocol"
)

var fixedInstant = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Logger = log.New(io.Discard, "", 0)
	cfg.Clock = protocol.ClockFunc(func() time.Time { return fixedInstant })
	return cfg
}

// startServer runs a server on an ephemeral loopback port until the test ends.
func startServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err, "Run")
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return s
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(text string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := io.WriteString(c.conn, text)
	require.NoError(c.t, err)
}

func (c *client) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err, "partial line %q", line)
	return strings.TrimSuffix(line, "\n")
}

func (c *client) roundTrip(line string) string {
	c.t.Helper()
	c.send(line + "\n")
	return c.readLine()
}

func (c *client) expectEOF() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := c.r.ReadByte()
	require.ErrorIs(c.t, err, io.EOF)
}

func TestServer_Echo(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	for _, msg := range []string{"hello world", "", "  padded  ", "ünïcødé"} {
		assert.Equal(t, msg, c.roundTrip("echo "+msg))
	}
	assert.Equal(t, "crlf", c.roundTrip("echo crlf\r"), "CRLF terminated line")
}

func TestServer_TimeZones(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	assert.Equal(t, "2024-Mar-05 14:07:09 GMT", c.roundTrip("time GMT"))

	local := fixedInstant.In(time.Local).Format(protocol.TimeLayout)
	assert.Equal(t, local, c.roundTrip("time Nowhere/Special"), "unknown zone falls back to local")
}

func TestServer_UsageOnUnknown(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	c.send("hello\n")
	for _, want := range strings.Split(protocol.UsageMessage, "\n") {
		assert.Equal(t, want, c.readLine())
	}
	// The connection stays usable.
	assert.Equal(t, "still here", c.roundTrip("echo still here"))
}

func TestServer_QuitFlushesThenCloses(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	c.send("echo first\nquit\necho never\n")
	assert.Equal(t, "first", c.readLine())
	assert.Equal(t, "quit", c.readLine())
	c.expectEOF()
}

func TestServer_Pipelining(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	var b strings.Builder
	const n = 200
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "echo line-%d\n", i)
	}
	c.send(b.String())
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("line-%d", i), c.readLine(), "response %d", i)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	s := startServer(t, WithWorkers(2, 3), WithQueueSize(8))
	const clients, requests = 24, 25

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(10 * time.Second))
			r := bufio.NewReader(conn)
			for j := 0; j < requests; j++ {
				msg := fmt.Sprintf("client-%d-req-%d", id, j)
				if _, err := io.WriteString(conn, "echo "+msg+"\n"); err != nil {
					errs <- err
					return
				}
				line, err := r.ReadString('\n')
				if err != nil {
					errs <- err
					return
				}
				if got := strings.TrimSuffix(line, "\n"); got != msg {
					errs <- fmt.Errorf("client %d: got %q, want %q", id, got, msg)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int64(clients*requests), s.Stats()["requests"])
}

func TestServer_LargeResponse(t *testing.T) {
	const size = 4 << 20
	s := startServer(t, WithMaxLineSize(size+16))
	c := dial(t, s)

	payload := strings.Repeat("x", size)
	go func() {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		io.WriteString(c.conn, "echo "+payload+"\n")
	}()

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err, "read after %d bytes", len(line))
	require.Len(t, line, size+1)
	require.True(t, line[:size] == payload, "payload corrupted")

	assert.Equal(t, "after", c.roundTrip("echo after"))
}

func TestServer_LineTooLongDisconnects(t *testing.T) {
	s := startServer(t, WithMaxLineSize(32))
	c := dial(t, s)
	c.send("echo " + strings.Repeat("y", 128))
	c.expectEOF()
}

func TestServer_Greeting(t *testing.T) {
	s := startServer(t, WithGreeting(true))
	c := dial(t, s)
	assert.Equal(t, fmt.Sprintf("Hello %s..", c.conn.LocalAddr()), c.readLine())
	assert.Equal(t, "hi", c.roundTrip("echo hi"))
}

func TestServer_DisconnectIdempotent(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.Equal(t, "ping", c.roundTrip("echo ping"))

	sessions := s.registry.Snapshot()
	require.Len(t, sessions, 1)
	sess := sessions[0]
	s.disconnect(sess, "test")
	s.disconnect(sess, "test again")

	c.expectEOF()
	assert.Equal(t, 0, s.registry.Len())
	assert.Equal(t, int64(1), s.c.closed.Load())
}

func TestServer_SaturatedPool(t *testing.T) {
	hook := func(JobKind) { time.Sleep(5 * time.Millisecond) }
	s := startServer(t, WithWorkers(1, 1), WithQueueSize(1), WithJobHook(hook))

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(10 * time.Second))
			msg := fmt.Sprintf("busy-%d", id)
			if _, err := io.WriteString(conn, "echo "+msg+"\n"); err != nil {
				errs <- err
				return
			}
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				errs <- err
				return
			}
			if got := strings.TrimSuffix(line, "\n"); got != msg {
				errs <- fmt.Errorf("got %q, want %q", got, msg)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	t.Logf("rejected submissions: %d", s.c.rejected.Load())
}

func TestServer_Stats(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	c.roundTrip("echo stats")

	st := s.Stats()
	for _, key := range []string{
		"connections_accepted", "connections_active", "requests", "responses",
		"executor.num_workers", "platform.cpus", "pool.read_buffers", "uptime_seconds",
		"sessions_in_flight", "pool.buffer_size",
	} {
		assert.Contains(t, st, key)
	}
	assert.Equal(t, int64(1), st["connections_accepted"])
}

func TestServer_BindFailure(t *testing.T) {
	s := startServer(t)
	cfg := testConfig()
	cfg.ListenAddr = s.Addr()

	_, err := NewServer(cfg)
	require.Error(t, err, "second bind on %s", s.Addr())

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrCodeBind, apiErr.Code)
}

func TestServer_ShutdownAndRestart(t *testing.T) {
	s, err := NewServer(testConfig())
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	c := dial(t, s)
	require.Equal(t, "up", c.roundTrip("echo up"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
	c.expectEOF()

	assert.ErrorIs(t, s.Run(context.Background()), api.ErrServerClosed)
	assert.NoError(t, s.Shutdown(ctx), "second Shutdown")
}

func TestServer_LoopCPUPinning(t *testing.T) {
	s := startServer(t, WithLoopCPU(0))
	c := dial(t, s)
	assert.Equal(t, "pinned", c.roundTrip("echo pinned"))
}

func TestServer_PinningIsOptIn(t *testing.T) {
	s, err := NewServer(&Config{ListenAddr: "127.0.0.1:0", Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	assert.False(t, s.cfg.PinLoop, "zero-value config must not pin the loop")

	var cfg Config
	WithLoopCPU(0)(&cfg)
	assert.True(t, cfg.PinLoop)
	assert.Equal(t, 0, cfg.LoopCPU)
}

func TestServer_PeerCloseReleasesSession(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.Equal(t, "bye", c.roundTrip("echo bye"))
	require.Equal(t, 1, s.registry.Len())

	c.send("echo unterminated")
	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return s.registry.Len() == 0 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), s.c.closed.Load())
}

func TestServer_PeerResetReleasesSession(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.Equal(t, "reset", c.roundTrip("echo reset"))

	// Zero linger turns Close into an RST.
	require.NoError(t, c.conn.(*net.TCPConn).SetLinger(0))
	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return s.registry.Len() == 0 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), s.c.closed.Load())
}

func TestServer_DispatchSkipsStaleEvents(t *testing.T) {
	var jobs atomic.Int32
	s, err := NewServer(testConfig(), WithJobHook(func(JobKind) { jobs.Add(1) }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	s.dispatch(api.ReadyEvent{Token: 4242, Readable: true})

	gone := session.New(s.registry.NextID(), -1, "gone", 0)
	require.True(t, s.registry.Add(gone))
	require.True(t, s.registry.Remove(gone.ID()))
	s.dispatch(api.ReadyEvent{Token: gone.ID(), Readable: true})

	held := session.New(s.registry.NextID(), -1, "held", 0)
	require.True(t, s.registry.Add(held))
	_, ok := held.Withdraw()
	require.True(t, ok)
	s.dispatch(api.ReadyEvent{Token: held.ID(), Readable: true})
	require.True(t, s.registry.Remove(held.ID()))

	assert.Never(t, func() bool { return jobs.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, s.deferred)
	assert.Zero(t, s.c.rejected.Load())
}

func TestServer_SaturationKeepsRejectionsBounded(t *testing.T) {
	var jobs atomic.Int64
	s := startServer(t, WithWorkers(1, 2), WithQueueSize(2),
		WithJobHook(func(JobKind) { jobs.Add(1) }))

	const clients, lines = 100, 20
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(10 * time.Second))

			var b strings.Builder
			for j := 0; j < lines; j++ {
				fmt.Fprintf(&b, "echo c%d-%d\n", id, j)
			}
			b.WriteString("quit\n")
			if _, err := io.WriteString(conn, b.String()); err != nil {
				errs <- err
				return
			}
			r := bufio.NewReader(conn)
			for j := 0; j <= lines; j++ {
				want := fmt.Sprintf("c%d-%d", id, j)
				if j == lines {
					want = "quit"
				}
				line, err := r.ReadString('\n')
				if err != nil {
					errs <- fmt.Errorf("client %d line %d: %w", id, j, err)
					return
				}
				if got := strings.TrimSuffix(line, "\n"); got != want {
					errs <- fmt.Errorf("client %d: got %q, want %q", id, got, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// Each rejection is followed by at least one job submitted from the
	// waiting list, so rejections cannot outrun executed jobs.
	rejected := s.c.rejected.Load()
	t.Logf("jobs %d, rejected %d", jobs.Load(), rejected)
	assert.Less(t, rejected, jobs.Load()+clients)
}

func TestServer_AcceptPausesOnDescriptorExhaustion(t *testing.T) {
	s := startServer(t)
	host, portStr, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], net.ParseIP(host).To4())

	const clients = 3
	fds := make([]int, clients)
	for i := range fds {
		fds[i], err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		for _, fd := range fds {
			if fd >= 0 {
				unix.Close(fd)
			}
		}
	})

	var orig unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &orig))
	restore := func() { _ = unix.Setrlimit(unix.RLIMIT_NOFILE, &orig) }
	t.Cleanup(restore)

	// Descriptors are allocated lowest first, so a limit equal to the lowest
	// free descriptor makes the next accept fail with EMFILE.
	free, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	unix.Close(free)
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: uint64(free), Max: orig.Max}))

	for _, fd := range fds {
		require.NoError(t, unix.Connect(fd, sa))
	}
	require.Eventually(t, func() bool { return s.c.acceptErrors.Load() > 0 },
		2*time.Second, 5*time.Millisecond)
	assert.Zero(t, s.registry.Len())
	restore()

	for i, fd := range fds {
		f := os.NewFile(uintptr(fd), "client-"+strconv.Itoa(i))
		fds[i] = -1
		conn, err := net.FileConn(f)
		f.Close()
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
		msg := fmt.Sprintf("resumed-%d", i)
		assert.Equal(t, msg, c.roundTrip("echo "+msg))
	}
	assert.Equal(t, int64(clients), s.c.accepted.Load())
}
