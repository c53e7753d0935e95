package websocket

import (
	"sync"

	"chat-client/internal/models"
	"chat-client/pkg/logger"
)

type RoomAction int

const (
	ActionJoin RoomAction = iota
	ActionLeave
)

func (a RoomAction) String() string {
	if a == ActionLeave {
		return "leave"
	}
	return "join"
}

// RoomIntent is a join or leave that has not reached the server yet.
type RoomIntent struct {
	Action RoomAction
	RoomID int64
}

func (i RoomIntent) frame() models.OutboundFrame {
	if i.Action == ActionLeave {
		return models.LeaveRoomFrame(i.RoomID)
	}
	return models.JoinRoomFrame(i.RoomID)
}

// Channel is the part of Manager the room queue drives.
type Channel interface {
	Do(fn func(w FrameWriter)) error
	OnOpen(fn func(FrameWriter))
	OnStop(fn func())
}

// RoomQueue tracks the active room and holds join/leave intents issued while the
// connection is not open. At most one intent per room is pending; the queue is
// drained in order when the connection opens.
type RoomQueue struct {
	ch Channel

	mu        sync.Mutex
	active    int64
	hasActive bool
	pending   []RoomIntent
}

func NewRoomQueue(ch Channel) *RoomQueue {
	q := &RoomQueue{ch: ch}
	ch.OnOpen(q.flush)
	ch.OnStop(q.reset)
	return q
}

// SwitchTo leaves the current room, if any, and joins roomID. Switching to the room
// that is already active does nothing.
func (q *RoomQueue) SwitchTo(roomID int64) error {
	return q.ch.Do(func(w FrameWriter) {
		q.mu.Lock()
		defer q.mu.Unlock()

		if q.hasActive && q.active == roomID {
			return
		}
		if q.hasActive {
			q.submit(w, RoomIntent{Action: ActionLeave, RoomID: q.active})
		}
		q.active, q.hasActive = roomID, true
		q.submit(w, RoomIntent{Action: ActionJoin, RoomID: roomID})
	})
}

// LeaveActive leaves the current room without joining another.
func (q *RoomQueue) LeaveActive() error {
	return q.ch.Do(func(w FrameWriter) {
		q.mu.Lock()
		defer q.mu.Unlock()

		if !q.hasActive {
			return
		}
		q.submit(w, RoomIntent{Action: ActionLeave, RoomID: q.active})
		q.active, q.hasActive = 0, false
	})
}

// Active returns the room the user is viewing.
func (q *RoomQueue) Active() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active, q.hasActive
}

// Pending returns a copy of the queued intents in send order.
func (q *RoomQueue) Pending() []RoomIntent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]RoomIntent(nil), q.pending...)
}

// submit queues the intent and, when the connection is open, drains the queue so
// intents left behind by an earlier failed write go out first. Caller holds q.mu.
func (q *RoomQueue) submit(w FrameWriter, intent RoomIntent) {
	q.enqueue(intent)
	if w != nil {
		q.drain(w)
	}
}

// enqueue applies the collapsing rule: a queued Join(x) followed by Leave(x) cancels
// both, and a queued Leave(x) followed by Join(x) becomes a single Join(x) at the tail.
func (q *RoomQueue) enqueue(intent RoomIntent) {
	for i, p := range q.pending {
		if p.RoomID != intent.RoomID {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		if p.Action == ActionJoin && intent.Action == ActionLeave {
			return
		}
		break
	}
	q.pending = append(q.pending, intent)
}

func (q *RoomQueue) hasPending(roomID int64) bool {
	for _, p := range q.pending {
		if p.RoomID == roomID {
			return true
		}
	}
	return false
}

// flush runs on every open. A fresh connection has no room membership, so the
// active room is joined again unless an intent for it is already queued.
func (q *RoomQueue) flush(w FrameWriter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasActive && !q.hasPending(q.active) {
		q.pending = append(q.pending, RoomIntent{Action: ActionJoin, RoomID: q.active})
	}
	q.drain(w)
}

// drain writes queued intents in order, popping each only after its write succeeds.
// Caller holds q.mu.
func (q *RoomQueue) drain(w FrameWriter) {
	for len(q.pending) > 0 {
		next := q.pending[0]
		if err := w.Write(next.frame()); err != nil {
			logger.Warn("Room queue drain stopped with %d pending: %v", len(q.pending), err)
			return
		}
		q.pending = q.pending[1:]
	}
}

func (q *RoomQueue) reset() {
	q.mu.Lock()
	q.pending = nil
	q.active, q.hasActive = 0, false
	q.mu.Unlock()
}
