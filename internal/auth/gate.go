package auth

import (
	"context"
	"errors"
	"sync"

	"chat-client/internal/websocket"
	"chat-client/pkg/logger"
)

// Connection is the part of the connection manager the gate drives.
type Connection interface {
	Start(session websocket.Session) error
	Stop() error
	Events() <-chan websocket.StateEvent
}

// TokenSink receives the bearer credential for REST calls.
type TokenSink interface {
	SetToken(token string)
}

// Gate decides from the session whether the realtime connection runs. It starts the
// connection when a usable session is set and stops it on logout or when the server
// rejects the credential.
type Gate struct {
	conn   Connection
	tokens TokenSink

	mu            sync.Mutex
	session       *Session
	authFailure   []func(error)
	stateHandlers []func(websocket.StateEvent)
}

func NewGate(conn Connection, tokens TokenSink) *Gate {
	return &Gate{conn: conn, tokens: tokens}
}

// OnAuthFailure registers fn to run after the gate cleared a rejected session, so the
// caller can re-authenticate and call SetSession again.
func (g *Gate) OnAuthFailure(fn func(error)) {
	g.mu.Lock()
	g.authFailure = append(g.authFailure, fn)
	g.mu.Unlock()
}

// OnStateChange registers fn for every connection state event seen by Run.
func (g *Gate) OnStateChange(fn func(websocket.StateEvent)) {
	g.mu.Lock()
	g.stateHandlers = append(g.stateHandlers, fn)
	g.mu.Unlock()
}

func (g *Gate) Session() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// SetSession installs s and starts the connection. A session without a usable token
// is refused with websocket.ErrAuthMissing and leaves the gate logged out.
func (g *Gate) SetSession(s *Session) error {
	if s.Token() == "" {
		g.Clear()
		return websocket.ErrAuthMissing
	}

	g.mu.Lock()
	prev := g.session
	g.session = s
	g.mu.Unlock()

	if g.tokens != nil {
		g.tokens.SetToken(s.Token())
	}
	// A new credential needs a new handshake.
	if prev != nil && prev.Token() != s.Token() {
		if err := g.conn.Stop(); err != nil {
			return err
		}
	}
	return g.conn.Start(s)
}

// Clear logs out: the session is dropped and the connection stopped.
func (g *Gate) Clear() error {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()

	if g.tokens != nil {
		g.tokens.SetToken("")
	}
	return g.conn.Stop()
}

// Run consumes connection events until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	events := g.conn.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			g.handle(ev)
		}
	}
}

func (g *Gate) handle(ev websocket.StateEvent) {
	g.mu.Lock()
	handlers := append([]func(websocket.StateEvent){}, g.stateHandlers...)
	g.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}

	if !ev.Terminal || !isAuthFailure(ev.Err) {
		return
	}

	if !g.isCurrent(ev.Session) {
		logger.Debug("Ignoring auth failure of a replaced session: %v", ev.Err)
		return
	}

	logger.Warn("Session credential refused, logging out: %v", ev.Err)
	if err := g.Clear(); err != nil {
		logger.Error("Failed to stop connection after auth failure: %v", err)
	}

	g.mu.Lock()
	callbacks := append([]func(error){}, g.authFailure...)
	g.mu.Unlock()
	for _, fn := range callbacks {
		fn(ev.Err)
	}
}

// isCurrent reports whether an event produced for s still concerns the installed
// session. Events that carry no session are attributed to the current one.
func (g *Gate) isCurrent(s websocket.Session) bool {
	if s == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil && s == websocket.Session(g.session)
}

func isAuthFailure(err error) bool {
	return errors.Is(err, websocket.ErrAuthRejected) || errors.Is(err, websocket.ErrAuthMissing)
}
