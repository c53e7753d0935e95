package websocket

import (
	"testing"
	"time"

	"chat-client/internal/models"

	"github.com/gorilla/websocket"
)

func join(id int64) models.OutboundFrame  { return models.JoinRoomFrame(id) }
func leave(id int64) models.OutboundFrame { return models.LeaveRoomFrame(id) }

func expectFrames(t *testing.T, conn *fakeConn, want ...models.OutboundFrame) {
	t.Helper()
	for _, w := range want {
		if got := conn.nextFrame(t); got != w {
			t.Fatalf("expected %+v, got %+v", w, got)
		}
	}
	conn.expectNoFrame(t)
}

func openManager(t *testing.T, d *fakeDialer, m *Manager) *fakeConn {
	t.Helper()
	if err := m.Start(tokenSession("t")); err != nil {
		t.Fatal(err)
	}
	conn := d.nextConn(t)
	waitForState(t, m, StateOpen)
	return conn
}

func TestSwitchBeforeOpenSendsOnlyLatestJoin(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)

	q.SwitchTo(1)
	q.SwitchTo(2)

	pending := q.Pending()
	if len(pending) != 1 || pending[0] != (RoomIntent{Action: ActionJoin, RoomID: 2}) {
		t.Fatalf("expected only join(2) pending, got %+v", pending)
	}

	conn := openManager(t, d, m)
	expectFrames(t, conn, join(2))
	if len(q.Pending()) != 0 {
		t.Fatalf("expected drained queue, got %+v", q.Pending())
	}
}

func TestSwitchWhileOpenSendsLeaveThenJoin(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)
	conn := openManager(t, d, m)

	q.SwitchTo(42)
	expectFrames(t, conn, join(42))

	q.SwitchTo(7)
	expectFrames(t, conn, leave(42), join(7))

	q.SwitchTo(7)
	conn.expectNoFrame(t)

	if active, ok := q.Active(); !ok || active != 7 {
		t.Fatalf("expected active room 7, got %d (%v)", active, ok)
	}
}

func TestQueueCollapsesWhileDisconnected(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, time.Hour, 5)
	q := NewRoomQueue(m)
	conn := openManager(t, d, m)

	q.SwitchTo(1)
	expectFrames(t, conn, join(1))

	conn.readErr <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	waitForState(t, m, StateClosedError)

	q.SwitchTo(2)
	want := []RoomIntent{{Action: ActionLeave, RoomID: 1}, {Action: ActionJoin, RoomID: 2}}
	if got := q.Pending(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	// Join(2) is cancelled by Leave(2); Leave(1) is replaced by Join(1).
	q.SwitchTo(1)
	got := q.Pending()
	if len(got) != 1 || got[0] != (RoomIntent{Action: ActionJoin, RoomID: 1}) {
		t.Fatalf("expected single join(1), got %+v", got)
	}
}

func TestLeaveActive(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)

	q.SwitchTo(3)
	q.LeaveActive()
	if got := q.Pending(); len(got) != 0 {
		t.Fatalf("join then leave must cancel out, got %+v", got)
	}
	if _, ok := q.Active(); ok {
		t.Fatal("expected no active room")
	}

	conn := openManager(t, d, m)
	conn.expectNoFrame(t)

	q.SwitchTo(4)
	q.LeaveActive()
	expectFrames(t, conn, join(4), leave(4))
}

func TestRejoinActiveRoomAfterReconnect(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)
	first := openManager(t, d, m)

	q.SwitchTo(7)
	expectFrames(t, first, join(7))

	first.readErr <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	waitForState(t, m, StateClosedError)

	second := d.nextConn(t)
	waitForState(t, m, StateOpen)
	expectFrames(t, second, join(7))
}

func TestFlushPrecedesLaterSends(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)

	q.SwitchTo(9)
	conn := openManager(t, d, m)
	if err := m.Send(models.SendMessageFrame(9, "hello")); err != nil {
		t.Fatal(err)
	}
	expectFrames(t, conn, join(9), models.SendMessageFrame(9, "hello"))
}

func TestStopClearsQueueAndActiveRoom(t *testing.T) {
	d := newFakeDialer(nil)
	m := newTestManager(t, d, 10*time.Millisecond, 5)
	q := NewRoomQueue(m)

	q.SwitchTo(5)
	m.Stop()

	if got := q.Pending(); len(got) != 0 {
		t.Fatalf("expected empty queue after stop, got %+v", got)
	}
	if _, ok := q.Active(); ok {
		t.Fatal("expected no active room after stop")
	}

	conn := openManager(t, d, m)
	conn.expectNoFrame(t)
}

// stubChannel runs queue callbacks directly, with a writer whose writes can be
// made to fail.
type stubChannel struct {
	open   bool
	fail   int
	frames []models.OutboundFrame
	onOpen []func(FrameWriter)
}

func (c *stubChannel) Write(frame models.OutboundFrame) error {
	if c.fail > 0 {
		c.fail--
		return ErrSendBufferFull
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *stubChannel) Do(fn func(FrameWriter)) error {
	if c.open {
		fn(c)
	} else {
		fn(nil)
	}
	return nil
}

func (c *stubChannel) OnOpen(fn func(FrameWriter)) { c.onOpen = append(c.onOpen, fn) }
func (c *stubChannel) OnStop(fn func())            {}

func (c *stubChannel) reopen() {
	c.open = true
	for _, fn := range c.onOpen {
		fn(c)
	}
}

func TestSubmitDrainsIntentsLeftByFailedFlush(t *testing.T) {
	ch := &stubChannel{open: true}
	q := NewRoomQueue(ch)

	q.SwitchTo(1)
	ch.open = false
	q.SwitchTo(2)

	ch.fail = 1
	ch.reopen()
	want := []RoomIntent{{Action: ActionLeave, RoomID: 1}, {Action: ActionJoin, RoomID: 2}}
	if got := q.Pending(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected failed flush to keep %+v, got %+v", want, got)
	}

	q.SwitchTo(3)
	wantFrames := []models.OutboundFrame{join(1), leave(1), join(3)}
	if len(ch.frames) != len(wantFrames) {
		t.Fatalf("expected frames %+v, got %+v", wantFrames, ch.frames)
	}
	for i := range wantFrames {
		if ch.frames[i] != wantFrames[i] {
			t.Fatalf("expected frames %+v, got %+v", wantFrames, ch.frames)
		}
	}
	if got := q.Pending(); len(got) != 0 {
		t.Fatalf("expected drained queue, got %+v", got)
	}
}
