package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/websocket"
)

type fakeConnection struct {
	mu     sync.Mutex
	starts []string
	stops  int
	events chan websocket.StateEvent
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{events: make(chan websocket.StateEvent, 8)}
}

func (c *fakeConnection) Start(s websocket.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil || s.Token() == "" {
		return websocket.ErrAuthMissing
	}
	c.starts = append(c.starts, s.Token())
	return nil
}

func (c *fakeConnection) Stop() error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	return nil
}

func (c *fakeConnection) Events() <-chan websocket.StateEvent { return c.events }

func (c *fakeConnection) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts), c.stops
}

type tokenRecorder struct {
	mu    sync.Mutex
	token string
}

func (r *tokenRecorder) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

func (r *tokenRecorder) get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func TestGateStartsAndStops(t *testing.T) {
	conn := newFakeConnection()
	tokens := &tokenRecorder{}
	g := NewGate(conn, tokens)

	if err := g.SetSession(NewSession("tok", models.User{ID: "u1"})); err != nil {
		t.Fatal(err)
	}
	if starts, _ := conn.counts(); starts != 1 {
		t.Fatalf("expected connection start, got %d", starts)
	}
	if tokens.get() != "tok" {
		t.Fatalf("expected REST token to be set, got %q", tokens.get())
	}

	if err := g.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, stops := conn.counts(); stops != 1 {
		t.Fatalf("expected connection stop, got %d", stops)
	}
	if g.Session() != nil || tokens.get() != "" {
		t.Fatal("expected cleared session and token")
	}
}

func TestGateRefusesUnusableSession(t *testing.T) {
	conn := newFakeConnection()
	g := NewGate(conn, nil)

	if err := g.SetSession(NewSession("", models.User{})); !errors.Is(err, websocket.ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
	if starts, _ := conn.counts(); starts != 0 {
		t.Fatal("connection must not start without a token")
	}
}

func TestGateRestartsOnNewCredential(t *testing.T) {
	conn := newFakeConnection()
	g := NewGate(conn, nil)

	g.SetSession(NewSession("one", models.User{}))
	g.SetSession(NewSession("two", models.User{}))

	starts, stops := conn.counts()
	if starts != 2 || stops != 1 {
		t.Fatalf("expected restart with new token, got %d starts %d stops", starts, stops)
	}
}

func TestGateClearsSessionOnAuthRejection(t *testing.T) {
	conn := newFakeConnection()
	g := NewGate(conn, nil)
	session := NewSession("tok", models.User{})
	g.SetSession(session)

	failures := make(chan error, 1)
	g.OnAuthFailure(func(err error) { failures <- err })
	states := make(chan websocket.StateEvent, 4)
	g.OnStateChange(func(ev websocket.StateEvent) { states <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	conn.events <- websocket.StateEvent{
		Old:      websocket.StateConnecting,
		New:      websocket.StateClosedError,
		Terminal: true,
		Err:      websocket.ErrAuthRejected,
		Session:  session,
	}

	select {
	case err := <-failures:
		if !errors.Is(err, websocket.ErrAuthRejected) {
			t.Fatalf("unexpected failure %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected auth failure callback")
	}
	if g.Session() != nil {
		t.Fatal("expected session to be cleared")
	}
	if len(states) != 1 {
		t.Fatalf("expected the state event to be forwarded, got %d", len(states))
	}
}

func TestGateIgnoresNetworkFailure(t *testing.T) {
	conn := newFakeConnection()
	g := NewGate(conn, nil)
	g.SetSession(NewSession("tok", models.User{}))
	g.OnAuthFailure(func(err error) { t.Errorf("unexpected auth failure %v", err) })

	g.handle(websocket.StateEvent{New: websocket.StateClosedError, Terminal: true, Err: websocket.ErrConnectionLost})
	if g.Session() == nil {
		t.Fatal("a lost connection must not log the user out")
	}
}

func TestGateIgnoresAuthFailureOfReplacedSession(t *testing.T) {
	conn := newFakeConnection()
	tokens := &tokenRecorder{}
	g := NewGate(conn, tokens)
	g.OnAuthFailure(func(err error) { t.Errorf("unexpected auth failure %v", err) })

	old := NewSession("one", models.User{})
	g.SetSession(old)
	current := NewSession("two", models.User{})
	g.SetSession(current)

	g.handle(websocket.StateEvent{
		New:      websocket.StateClosedError,
		Terminal: true,
		Err:      websocket.ErrAuthRejected,
		Session:  old,
	})
	if g.Session() != current {
		t.Fatal("a rejection of the replaced session must keep the new one")
	}
	if tokens.get() != "two" {
		t.Fatalf("expected REST token to stay, got %q", tokens.get())
	}
	if _, stops := conn.counts(); stops != 1 {
		t.Fatalf("expected only the restart stop, got %d", stops)
	}
}
