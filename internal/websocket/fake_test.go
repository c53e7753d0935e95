package websocket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-client/internal/models"

	"github.com/gorilla/websocket"
)

type tokenSession string

func (s tokenSession) Token() string { return string(s) }

type fakeConn struct {
	inbound chan []byte
	readErr chan error
	writes  chan []byte
	closed  chan struct{}

	mu        sync.Mutex
	closeCode int
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
		writes:  make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	switch messageType {
	case websocket.TextMessage:
		c.writes <- data
	case websocket.CloseMessage:
		c.mu.Lock()
		if len(data) >= 2 {
			c.closeCode = int(binary.BigEndian.Uint16(data))
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentCloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// nextFrame waits for the next text frame written on the connection.
func (c *fakeConn) nextFrame(t *testing.T) models.OutboundFrame {
	t.Helper()
	select {
	case data := <-c.writes:
		var frame models.OutboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", data, err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return models.OutboundFrame{}
	}
}

func (c *fakeConn) expectNoFrame(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.writes:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeDialer hands out fakeConns. fail decides, per dial number starting at 1,
// whether that dial errors.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	fail  func(n int) error
	conns chan *fakeConn
}

func newFakeDialer(fail func(n int) error) *fakeDialer {
	return &fakeDialer{fail: fail, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	n := len(d.urls)
	d.mu.Unlock()

	if d.fail != nil {
		if err := d.fail(n); err != nil {
			return nil, err
		}
	}
	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) url(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func newTestManager(t *testing.T, d Dialer, base time.Duration, maxAttempts int) *Manager {
	t.Helper()
	m := NewManager(Options{
		URL:         "ws://chat.test/api/v1/chat/ws",
		BaseDelay:   base,
		MaxAttempts: maxAttempts,
		Dialer:      d,
	})
	t.Cleanup(func() { m.Close() })
	return m
}

// waitForState consumes events until one enters want.
func waitForState(t *testing.T, m *Manager, want State) StateEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.New == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s, current %s", want, m.State())
			return StateEvent{}
		}
	}
}
