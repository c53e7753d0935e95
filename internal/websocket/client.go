package websocket

import (
	"errors"
	"sync"
	"time"

	"chat-client/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Conn is the subset of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// client owns one live transport connection. It is created by the Manager when a dial
// succeeds and reports back through the Manager's event channel, tagged with gen.
type client struct {
	manager *Manager
	conn    Conn
	gen     uint64
	send    chan []byte

	closeReq   chan struct{}
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	doneOnce   sync.Once
}

func newClient(m *Manager, conn Conn, gen uint64) *client {
	return &client{
		manager:    m,
		conn:       conn,
		gen:        gen,
		send:       make(chan []byte, sendBufferSize),
		closeReq:   make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// enqueue hands a frame to the write pump without blocking the caller.
func (c *client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeNormal asks the write pump to send a normal close frame and hang up.
func (c *client) closeNormal() {
	c.closeOnce.Do(func() { close(c.closeReq) })
}

func (c *client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *client) readPump() {
	var readErr error
	defer func() {
		c.finish()
		c.conn.Close()
		c.manager.post(connEvent{kind: eventClosed, gen: c.gen, err: readErr})
	}()

	if limit := c.manager.opts.ReadLimit; limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("WebSocket read error: %v", err)
			}
			readErr = err
			return
		}

		select {
		case c.manager.frames <- message:
		case <-c.manager.done:
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				c.finish()
				return
			}

		case <-c.closeReq:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
			if err := c.conn.WriteMessage(websocket.CloseMessage, payload); err != nil {
				logger.Debug("Close frame not delivered: %v", err)
			}
			c.finish()
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish()
				return
			}

		case <-c.done:
			return
		}
	}
}

// isCleanClose reports whether err is a close frame with the normal closure code.
func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure
	}
	return false
}
