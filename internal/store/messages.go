// Package store holds the per-room message collections that merge history fetches
// with live pushes.
package store

import (
	"sort"
	"sync"

	"chat-client/internal/models"
)

// MessageStore keeps one set of messages per room, keyed by message id. Storage order
// carries no meaning; View sorts by creation time on every read.
type MessageStore struct {
	mu       sync.RWMutex
	rooms    map[int64]map[int64]models.Message
	watchers []chan int64
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		rooms: make(map[int64]map[int64]models.Message),
	}
}

// Append adds a live message. It reports false when the id is already present.
func (s *MessageStore) Append(roomID int64, msg models.Message) bool {
	s.mu.Lock()
	room := s.room(roomID)
	if _, exists := room[msg.MessageID]; exists {
		s.mu.Unlock()
		return false
	}
	msg.RoomID = roomID
	room[msg.MessageID] = msg
	s.mu.Unlock()

	s.notify(roomID)
	return true
}

// ReplaceHistory merges a history fetch into the room. Messages that already arrived
// live are kept as they are; the rest are added. It returns how many were added.
func (s *MessageStore) ReplaceHistory(roomID int64, messages []models.Message) int {
	s.mu.Lock()
	room := s.room(roomID)
	added := 0
	for _, msg := range messages {
		if _, exists := room[msg.MessageID]; exists {
			continue
		}
		msg.RoomID = roomID
		room[msg.MessageID] = msg
		added++
	}
	s.mu.Unlock()

	s.notify(roomID)
	return added
}

// View returns a copy of the room's messages ordered by CreatedAt ascending.
func (s *MessageStore) View(roomID int64) []models.Message {
	s.mu.RLock()
	room := s.rooms[roomID]
	out := make([]models.Message, 0, len(room))
	for _, msg := range room {
		out = append(out, msg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MessageStore) Len(roomID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}

// Reset drops every room, e.g. on logout.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.rooms = make(map[int64]map[int64]models.Message)
	s.mu.Unlock()
}

// Watch returns a channel that receives the id of every room whose collection changed.
// Notifications are dropped for a watcher whose buffer is full.
func (s *MessageStore) Watch(buffer int) <-chan int64 {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan int64, buffer)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// room must be called with s.mu held for writing.
func (s *MessageStore) room(roomID int64) map[int64]models.Message {
	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[int64]models.Message)
		s.rooms[roomID] = room
	}
	return room
}

func (s *MessageStore) notify(roomID int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- roomID:
		default:
		}
	}
}
