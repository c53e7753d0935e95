package websocket

import (
	"errors"
	"time"
)

var (
	// ErrAuthMissing is returned by Start when the session has no usable credential.
	ErrAuthMissing = errors.New("websocket: no authentication token")
	// ErrAuthRejected marks a handshake the server refused with 401/403. It is not retried.
	ErrAuthRejected = errors.New("websocket: credential rejected")
	// ErrNotConnected is returned by Send while the connection is not open.
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrConnectionLost is the terminal error once reconnect attempts are exhausted.
	ErrConnectionLost = errors.New("websocket: connection lost")
	// ErrSendBufferFull is returned when the write pump cannot keep up.
	ErrSendBufferFull = errors.New("websocket: send buffer full")
	// ErrManagerClosed is returned for commands issued after Close.
	ErrManagerClosed = errors.New("websocket: manager closed")
)

// State is the connection state owned by the Manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosedClean
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosedClean:
		return "closed_clean"
	case StateClosedError:
		return "closed_error"
	default:
		return "unknown"
	}
}

// Health is the coarse connection status shown to users.
type Health int

const (
	HealthDisconnected Health = iota
	HealthConnecting
	HealthConnected
)

func (h Health) String() string {
	switch h {
	case HealthConnected:
		return "connected"
	case HealthConnecting:
		return "connecting"
	default:
		return "disconnected"
	}
}

func (s State) Health() Health {
	switch s {
	case StateOpen:
		return HealthConnected
	case StateConnecting:
		return HealthConnecting
	default:
		return HealthDisconnected
	}
}

// StateEvent describes one transition. Delay is set when a reconnect was scheduled;
// Terminal is set when no further automatic transition will happen. Session is the
// session the connection was started with, nil once it was stopped.
type StateEvent struct {
	Old      State
	New      State
	Attempt  int
	Delay    time.Duration
	Terminal bool
	Err      error
	Session  Session
}

// Status is a point-in-time copy of the connection fields.
type Status struct {
	State     State
	Attempt   int
	LastError error
}

// ServerError is an error frame pushed by the server.
type ServerError struct {
	Content string
}

func (e *ServerError) Error() string {
	if e.Content == "" {
		return "server error"
	}
	return "server error: " + e.Content
}
