package store

import (
	"testing"
	"time"

	"chat-client/internal/models"
)

func msgAt(id int64, minute int) models.Message {
	return models.Message{
		MessageID: id,
		SenderID:  "u1",
		Content:   "m",
		CreatedAt: time.Date(2025, 1, 1, 0, minute, 0, 0, time.UTC),
	}
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAppendIsIdempotent(t *testing.T) {
	s := NewMessageStore()
	s.Append(1, msgAt(10, 1))
	n := s.Len(1)

	if !s.Append(1, msgAt(11, 2)) {
		t.Fatal("first append of a new id must succeed")
	}
	if s.Append(1, msgAt(11, 2)) {
		t.Fatal("second append of the same id must be a no-op")
	}
	if got := s.Len(1); got != n+1 {
		t.Fatalf("expected %d messages, got %d", n+1, got)
	}
}

func TestSameIDInDifferentRoomsIsDistinct(t *testing.T) {
	s := NewMessageStore()
	s.Append(1, msgAt(5, 1))
	s.Append(2, msgAt(5, 1))
	if s.Len(1) != 1 || s.Len(2) != 1 {
		t.Fatalf("expected one message per room, got %d/%d", s.Len(1), s.Len(2))
	}
	if got := s.View(2)[0].RoomID; got != 2 {
		t.Fatalf("stored message must carry its room, got %d", got)
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	m1, m2, m3 := msgAt(1, 1), msgAt(2, 2), msgAt(3, 3)
	history := []models.Message{m1, m3}
	want := []int64{1, 2, 3}

	orders := map[string]func(s *MessageStore){
		"history then live": func(s *MessageStore) {
			s.ReplaceHistory(42, history)
			s.Append(42, m2)
		},
		"live then history": func(s *MessageStore) {
			s.Append(42, m2)
			s.ReplaceHistory(42, history)
		},
		"live duplicate of history": func(s *MessageStore) {
			s.Append(42, m3)
			s.Append(42, m2)
			s.ReplaceHistory(42, history)
		},
	}

	for name, apply := range orders {
		t.Run(name, func(t *testing.T) {
			s := NewMessageStore()
			apply(s)
			if got := ids(s.View(42)); !equalIDs(got, want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestReplaceHistoryKeepsLiveCopy(t *testing.T) {
	s := NewMessageStore()
	live := msgAt(7, 5)
	live.Content = "live"
	s.Append(1, live)

	stale := msgAt(7, 5)
	stale.Content = "history"
	if added := s.ReplaceHistory(1, []models.Message{stale, msgAt(8, 6)}); added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}
	if got := s.View(1)[0].Content; got != "live" {
		t.Fatalf("existing message must not be replaced, got %q", got)
	}
}

func TestViewTieBreaksOnID(t *testing.T) {
	s := NewMessageStore()
	s.Append(1, msgAt(9, 1))
	s.Append(1, msgAt(4, 1))
	if got := ids(s.View(1)); !equalIDs(got, []int64{4, 9}) {
		t.Fatalf("expected id order on equal timestamps, got %v", got)
	}
}

func TestViewReturnsCopy(t *testing.T) {
	s := NewMessageStore()
	s.Append(1, msgAt(1, 1))
	view := s.View(1)
	view[0].Content = "mutated"
	if s.View(1)[0].Content == "mutated" {
		t.Fatal("view must not alias store contents")
	}
}

func TestWatchNotifiesChanges(t *testing.T) {
	s := NewMessageStore()
	ch := s.Watch(4)
	s.Append(3, msgAt(1, 1))

	select {
	case room := <-ch:
		if room != 3 {
			t.Fatalf("expected room 3, got %d", room)
		}
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
}

func TestReset(t *testing.T) {
	s := NewMessageStore()
	s.Append(1, msgAt(1, 1))
	s.Reset()
	if s.Len(1) != 0 {
		t.Fatal("expected empty store after reset")
	}
}
