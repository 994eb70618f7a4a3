package chat

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	typ  int
	data []byte
	err  error
}

// fakeConn is an in-memory Conn. Inbound frames are queued with push; every
// text write is recorded and published on writes.
type fakeConn struct {
	inbound chan frame
	writes  chan []byte
	closed  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	controls  []int
	closeCode int
	readLimit int64

	writeDelay time.Duration
	failWrites atomic.Bool
	active     atomic.Int32
	maxActive  atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan frame, 64),
		writes:  make(chan []byte, 4096),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) push(text string) {
	c.inbound <- frame{typ: websocket.TextMessage, data: []byte(text)}
}

func (c *fakeConn) fail(err error) {
	c.inbound <- frame{err: err}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.typ, f.data, f.err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.isClosed() || c.failWrites.Load() {
		return net.ErrClosed
	}

	n := c.active.Add(1)
	for {
		prev := c.maxActive.Load()
		if n <= prev || c.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	c.active.Add(-1)

	c.writes <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.closeCode = int(data[0])<<8 | int(data[1])
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
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

func (c *fakeConn) sentClose() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// next returns the next written payload or fails the test.
func (c *fakeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-c.writes:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

// expectNone asserts that nothing is written within d.
func (c *fakeConn) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b := <-c.writes:
		t.Fatalf("unexpected write: %s", b)
	case <-time.After(d):
	}
}

func (c *fakeConn) nextEvent(t *testing.T) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(c.next(t), &ev))
	return ev
}

func (c *fakeConn) nextState(t *testing.T) InitialState {
	t.Helper()
	var st InitialState
	require.NoError(t, json.Unmarshal(c.next(t), &st))
	return st
}

// attach creates a session for name whose connection is already established,
// without running its state machine.
func attach(room *Room, name string) (*Session, *fakeConn) {
	conn := newFakeConn()
	s := NewSession(name, room, func() (Conn, error) { return conn, nil }, SessionOptions{})
	s.conn = conn
	return s, conn
}

func textPtr(s string) *string {
	return &s
}
