// Package websocket maintains the client's single realtime connection: dialing with
// the session token, reconnecting with linear backoff, and fanning inbound frames out
// to subscribers.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-client/internal/metrics"
	"chat-client/internal/models"
	"chat-client/pkg/logger"
)

const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxAttempts = 5

	frameBufferSize = 256
	eventBufferSize = 64
	errorBufferSize = 32
)

// Session supplies the credential for each dial. Token returns "" once the
// credential is missing or expired.
type Session interface {
	Token() string
}

// FrameWriter writes to the open connection. It is only valid for the duration of
// the callback it was passed to.
type FrameWriter interface {
	Write(frame models.OutboundFrame) error
}

// FrameHandler receives every inbound frame in arrival order.
type FrameHandler func(data []byte)

// Options configures a Manager. Zero values fall back to the defaults;
// DisableReconnect turns any unclean close into a terminal failure.
type Options struct {
	URL              string
	BaseDelay        time.Duration
	MaxAttempts      int
	DisableReconnect bool
	ReadLimit        int64
	Dialer           Dialer
	Metrics          *metrics.Metrics
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSend
	cmdDo
)

type command struct {
	kind    commandKind
	session Session
	frame   models.OutboundFrame
	fn      func(FrameWriter)
	reply   chan error
}

type eventKind int

const (
	eventDialed eventKind = iota
	eventDialFailed
	eventClosed
	eventRetry
)

type connEvent struct {
	kind eventKind
	gen  uint64
	conn Conn
	err  error
}

// Manager owns the connection state. All transitions happen on one goroutine; the
// public methods talk to it over channels, so callers never share state with the pumps.
type Manager struct {
	opts    Options
	metrics *metrics.Metrics

	commands chan command
	events   chan connEvent
	frames   chan []byte
	done     chan struct{}
	stopped  chan struct{}

	stateEvents chan StateEvent
	errs        chan error

	hooksMu   sync.RWMutex
	handlers  []FrameHandler
	openHooks []func(FrameWriter)
	stopHooks []func()

	statusMu sync.RWMutex
	status   Status

	closeOnce sync.Once

	// Owned by run.
	state      State
	attempt    int
	lastErr    error
	gen        uint64
	session    Session
	live       *client
	dialCancel context.CancelFunc
	retryTimer *time.Timer
}

func NewManager(opts Options) *Manager {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}

	m := &Manager{
		opts:        opts,
		metrics:     opts.Metrics,
		commands:    make(chan command),
		events:      make(chan connEvent, 8),
		frames:      make(chan []byte, frameBufferSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		stateEvents: make(chan StateEvent, eventBufferSize),
		errs:        make(chan error, errorBufferSize),
	}
	go m.run()
	go m.dispatch()
	return m
}

// Subscribe registers a handler for inbound frames. Handlers run on a single
// dispatch goroutine, one frame at a time.
func (m *Manager) Subscribe(h FrameHandler) {
	m.hooksMu.Lock()
	m.handlers = append(m.handlers, h)
	m.hooksMu.Unlock()
}

// OnOpen registers fn to run each time the connection opens, before any other
// command is processed.
func (m *Manager) OnOpen(fn func(FrameWriter)) {
	m.hooksMu.Lock()
	m.openHooks = append(m.openHooks, fn)
	m.hooksMu.Unlock()
}

// OnStop registers fn to run when Stop is processed.
func (m *Manager) OnStop(fn func()) {
	m.hooksMu.Lock()
	m.stopHooks = append(m.stopHooks, fn)
	m.hooksMu.Unlock()
}

// Events returns state transitions. Events are dropped when nobody keeps up.
func (m *Manager) Events() <-chan StateEvent { return m.stateEvents }

// Errors returns connection and server errors. Errors are dropped when nobody keeps up.
func (m *Manager) Errors() <-chan error { return m.errs }

func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

func (m *Manager) State() State { return m.Status().State }

func (m *Manager) Health() Health { return m.Status().State.Health() }

// Start begins connecting with the session's token. It is a no-op while connecting
// or open and fails with ErrAuthMissing when there is no usable token.
func (m *Manager) Start(session Session) error {
	return m.exec(command{kind: cmdStart, session: session})
}

// Stop closes the connection normally and cancels any pending reconnect.
func (m *Manager) Stop() error {
	return m.exec(command{kind: cmdStop})
}

// Send writes frame on the open connection. It never queues: while not open it
// returns ErrNotConnected.
func (m *Manager) Send(frame models.OutboundFrame) error {
	return m.exec(command{kind: cmdSend, frame: frame})
}

// Do runs fn on the state goroutine. fn receives a writer when the connection is
// open and nil otherwise; no transition can interleave with it.
func (m *Manager) Do(fn func(w FrameWriter)) error {
	return m.exec(command{kind: cmdDo, fn: fn})
}

// ReportServerError publishes an error frame pushed by the server.
func (m *Manager) ReportServerError(content string) {
	m.publishError(&ServerError{Content: content})
}

// Close stops the connection and releases the manager's goroutines.
func (m *Manager) Close() error {
	err := m.Stop()
	m.closeOnce.Do(func() { close(m.done) })
	<-m.stopped
	if errors.Is(err, ErrManagerClosed) {
		return nil
	}
	return err
}

func (m *Manager) exec(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.commands <- cmd:
	case <-m.done:
		return ErrManagerClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-m.done:
		return ErrManagerClosed
	}
}

// post delivers a transport event to the state goroutine.
func (m *Manager) post(ev connEvent) {
	select {
	case m.events <- ev:
	case <-m.done:
		if ev.conn != nil {
			ev.conn.Close()
		}
	}
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			m.teardown()
			return

		case cmd := <-m.commands:
			cmd.reply <- m.handleCommand(cmd)

		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return m.start(cmd.session)
	case cmdStop:
		m.stop()
		return nil
	case cmdSend:
		return m.send(cmd.frame)
	case cmdDo:
		if m.state == StateOpen {
			cmd.fn(writer{m})
		} else {
			cmd.fn(nil)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (m *Manager) start(session Session) error {
	if m.state == StateConnecting || m.state == StateOpen {
		return nil
	}
	if session == nil || session.Token() == "" {
		m.lastErr = ErrAuthMissing
		m.publishStatus()
		m.publishError(ErrAuthMissing)
		return ErrAuthMissing
	}

	m.cancelRetry()
	m.session = session
	m.attempt = 0
	m.lastErr = nil
	return m.connect()
}

// connect begins a dial for a new generation. Results of older generations are ignored.
func (m *Manager) connect() error {
	token := m.session.Token()
	if token == "" {
		m.terminate(ErrAuthMissing)
		return ErrAuthMissing
	}
	target, err := withToken(m.opts.URL, token)
	if err != nil {
		m.terminate(err)
		return err
	}

	m.gen++
	gen := m.gen
	m.live = nil
	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	m.transition(StateConnecting, 0, nil)

	go func() {
		conn, err := m.opts.Dialer.Dial(ctx, target)
		if err != nil {
			m.post(connEvent{kind: eventDialFailed, gen: gen, err: err})
			return
		}
		m.post(connEvent{kind: eventDialed, gen: gen, conn: conn})
	}()
	return nil
}

func (m *Manager) stop() {
	m.cancelRetry()
	m.cancelDial()
	m.session = nil
	m.attempt = 0

	switch m.state {
	case StateOpen:
		m.transition(StateClosing, 0, nil)
		m.live.closeNormal()
	case StateConnecting, StateClosedError:
		m.gen++
		m.lastErr = nil
		m.transition(StateClosedClean, 0, nil)
	}

	m.hooksMu.RLock()
	hooks := append([]func(){}, m.stopHooks...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) send(frame models.OutboundFrame) error {
	if m.state != StateOpen {
		logger.Warn("Rejected %s frame: %v", frame.Type, ErrNotConnected)
		m.metrics.SendRejected("not_connected")
		m.publishError(ErrNotConnected)
		return ErrNotConnected
	}
	return m.write(frame)
}

func (m *Manager) write(frame models.OutboundFrame) error {
	if m.state != StateOpen || m.live == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	if err := m.live.enqueue(data); err != nil {
		m.metrics.SendRejected("buffer_full")
		return err
	}
	m.metrics.FrameSent(string(frame.Type))
	return nil
}

func (m *Manager) handleEvent(ev connEvent) {
	if ev.gen != m.gen {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case eventDialed:
		if m.state != StateConnecting {
			ev.conn.Close()
			return
		}
		m.opened(ev.conn)

	case eventDialFailed:
		if m.state != StateConnecting {
			return
		}
		m.dialCancel = nil
		if errors.Is(ev.err, ErrAuthRejected) {
			logger.Warn("WebSocket handshake rejected: %v", ev.err)
			m.terminate(ev.err)
			return
		}
		logger.Warn("WebSocket dial failed: %v", ev.err)
		m.failed(ev.err)

	case eventClosed:
		m.live = nil
		switch {
		case m.state == StateClosing:
			m.transition(StateClosedClean, 0, nil)
		case isCleanClose(ev.err):
			logger.Info("WebSocket closed normally by server")
			m.transition(StateClosedClean, 0, nil)
		case m.state == StateOpen:
			m.failed(ev.err)
		}

	case eventRetry:
		if m.state != StateClosedError || m.session == nil {
			return
		}
		m.retryTimer = nil
		m.connect()
	}
}

// opened marks the connection open and runs the open hooks in the same step, so a
// queued flush always precedes frames from later commands.
func (m *Manager) opened(conn Conn) {
	m.dialCancel = nil
	m.live = newClient(m, conn, m.gen)
	m.live.start()
	m.attempt = 0
	m.lastErr = nil
	m.metrics.ConnectionOpened()
	m.transition(StateOpen, 0, nil)
	logger.Info("WebSocket connected")

	m.hooksMu.RLock()
	hooks := append([]func(FrameWriter){}, m.openHooks...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(writer{m})
	}
}

// failed schedules the next attempt after base*attempt, or gives up once
// MaxAttempts reconnects have been tried.
func (m *Manager) failed(cause error) {
	if cause == nil {
		cause = errors.New("connection closed")
	}
	if m.opts.DisableReconnect {
		m.terminate(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
		return
	}
	if m.attempt >= m.opts.MaxAttempts {
		m.terminate(fmt.Errorf("%w after %d attempts: %v", ErrConnectionLost, m.attempt, cause))
		return
	}

	m.attempt++
	delay := m.opts.BaseDelay * time.Duration(m.attempt)
	m.lastErr = cause
	m.metrics.ReconnectScheduled()
	m.transition(StateClosedError, delay, cause)
	logger.Info("Reconnecting in %v (attempt %d/%d)", delay, m.attempt, m.opts.MaxAttempts)

	gen := m.gen
	m.retryTimer = time.AfterFunc(delay, func() {
		m.post(connEvent{kind: eventRetry, gen: gen})
	})
}

// terminate moves to ClosedError with no further retry.
func (m *Manager) terminate(err error) {
	m.cancelRetry()
	m.lastErr = err
	m.gen++
	old := m.state
	m.state = StateClosedError
	m.publishStatus()
	m.publishEvent(StateEvent{
		Old:      old,
		New:      StateClosedError,
		Attempt:  m.attempt,
		Terminal: true,
		Err:      err,
		Session:  m.session,
	})
	m.publishError(err)
	logger.Error("WebSocket connection given up: %v", err)
}

func (m *Manager) transition(next State, delay time.Duration, err error) {
	old := m.state
	m.state = next
	m.publishStatus()
	m.publishEvent(StateEvent{
		Old:      old,
		New:      next,
		Attempt:  m.attempt,
		Delay:    delay,
		Terminal: next == StateClosedClean,
		Err:      err,
		Session:  m.session,
	})
}

func (m *Manager) cancelRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) cancelDial() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
}

func (m *Manager) teardown() {
	m.cancelRetry()
	m.cancelDial()
	if m.live != nil {
		// Give the write pump a moment to deliver the close frame.
		select {
		case <-m.live.writerDone:
		case <-time.After(writeWait):
		}
		m.live.finish()
		m.live.conn.Close()
		m.live = nil
	}
}

func (m *Manager) publishStatus() {
	m.statusMu.Lock()
	m.status = Status{State: m.state, Attempt: m.attempt, LastError: m.lastErr}
	m.statusMu.Unlock()
	m.metrics.SetConnectionState(int(m.state))
}

func (m *Manager) publishEvent(ev StateEvent) {
	select {
	case m.stateEvents <- ev:
	default:
	}
}

func (m *Manager) publishError(err error) {
	select {
	case m.errs <- err:
	default:
		logger.Debug("Error channel full, dropped: %v", err)
	}
}

func (m *Manager) dispatch() {
	for {
		select {
		case <-m.done:
			return
		case data := <-m.frames:
			m.hooksMu.RLock()
			handlers := append([]FrameHandler{}, m.handlers...)
			m.hooksMu.RUnlock()
			for _, h := range handlers {
				h(data)
			}
		}
	}
}

// writer is the FrameWriter handed to callbacks running on the state goroutine.
type writer struct {
	m *Manager
}

func (w writer) Write(frame models.OutboundFrame) error {
	return w.m.write(frame)
}
