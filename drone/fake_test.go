package drone

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return &logger
}

// replyFunc decides the drone's answer to the nth transmission of cmd.
type replyFunc func(cmd string, n int) (string, bool)

func alwaysOk(string, int) (string, bool) { return "ok", true }

func never(string, int) (string, bool) { return "", false }

type write struct {
	payload string
	at      time.Time
}

// fakeConn is one end of a datagram channel. Every Write is one datagram.
type fakeConn struct {
	mu       sync.Mutex
	writes   []write
	counts   map[string]int
	reply    replyFunc
	writeErr error

	in        chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(reply replyFunc) *fakeConn {
	return &fakeConn{
		counts:  make(map[string]int),
		reply:   reply,
		in:      make(chan []byte, 64),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.in:
		return copy(p, b), nil
	case err := <-c.readErr:
		return 0, err
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, errors.New("use of closed connection")
	default:
	}

	c.mu.Lock()
	cmd := string(p)
	c.writes = append(c.writes, write{payload: cmd, at: time.Now()})
	c.counts[cmd]++
	n := c.counts[cmd]
	reply, writeErr := c.reply, c.writeErr
	c.mu.Unlock()

	if writeErr != nil {
		return 0, writeErr
	}
	if reply != nil {
		if r, ok := reply(cmd, n); ok {
			c.push(r)
		}
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push delivers one datagram to the reader.
func (c *fakeConn) push(data string) {
	c.in <- []byte(data)
}

// fail makes the pending or next Read return err.
func (c *fakeConn) fail(err error) {
	c.readErr <- err
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) sent() []write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]write, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) payloads() []string {
	var out []string
	for _, w := range c.sent() {
		out = append(out, w.payload)
	}
	return out
}

// fakeTransport hands out a fresh pair of connections on every open.
type fakeTransport struct {
	mu      sync.Mutex
	reply   replyFunc
	openErr error
	cmd     *fakeConn
	tel     *fakeConn
}

func newFakeTransport(reply replyFunc) *fakeTransport {
	return &fakeTransport{reply: reply}
}

func (t *fakeTransport) OpenCommand() (io.ReadWriteCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.cmd = newFakeConn(t.reply)
	return t.cmd, nil
}

func (t *fakeTransport) OpenTelemetry() (io.ReadCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tel = newFakeConn(nil)
	return t.tel, nil
}

func (t *fakeTransport) command() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cmd
}

func (t *fakeTransport) telemetry() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tel
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var connectedFlags = Flags{State: Connected, MissionPadDetection: true, PadDownward: true,
	DefaultSpeed: DefaultSpeed}

func mustValidate(t *testing.T, req Request) Command {
	t.Helper()
	cmd, err := Validate(req, connectedFlags)
	if err != nil {
		t.Fatalf("Unexpected validation error for %s: %s", req.Op, err)
	}
	return cmd
}

func fastPolicy(attempts int, timeout time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Timeouts: map[Family]time.Duration{
			FamilyControl: timeout,
			FamilyQuery:   timeout,
			FamilyMotion:  timeout,
			FamilyLaunch:  timeout,
		},
	}
}
