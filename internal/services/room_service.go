package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chat-client/internal/models"
	"chat-client/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const memberFetchConcurrency = 4

// RoomAPI is the REST surface RoomService needs.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]models.BackendRoom, error)
	GetRoomMembers(ctx context.Context, roomID int64) ([]models.Member, error)
}

// RoomService keeps the room summaries shown in the sidebar. Summaries are updated by
// every observed message, for any room, and a summary's last message only moves
// forward in time.
type RoomService struct {
	api    RoomAPI
	selfID func() string

	mu    sync.RWMutex
	rooms map[int64]*models.RoomSummary
}

func NewRoomService(api RoomAPI, selfID func() string) *RoomService {
	if selfID == nil {
		selfID = func() string { return "" }
	}
	return &RoomService{
		api:    api,
		selfID: selfID,
		rooms:  make(map[int64]*models.RoomSummary),
	}
}

// Load fetches the room list. Rooms the backend reported without a member count are
// filled in from the members endpoint; a failed lookup leaves the count at zero.
func (s *RoomService) Load(ctx context.Context) ([]models.RoomSummary, error) {
	backend, err := s.api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	selfID := s.selfID()
	loaded := make([]models.RoomSummary, 0, len(backend))
	var missing []int
	for _, b := range backend {
		summary, hasCount := models.NormalizeRoom(b, selfID)
		if summary.RoomID <= 0 {
			logger.Warn("Skipping room without id: %q", summary.Name)
			continue
		}
		if !hasCount {
			missing = append(missing, len(loaded))
		}
		loaded = append(loaded, summary)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberFetchConcurrency)
	for _, idx := range missing {
		g.Go(func() error {
			members, err := s.api.GetRoomMembers(gctx, loaded[idx].RoomID)
			if err != nil {
				logger.Warn("Failed to load members for room %d: %v", loaded[idx].RoomID, err)
				return nil
			}
			loaded[idx].MemberCount = len(members)
			return nil
		})
	}
	g.Wait()

	s.mu.Lock()
	next := make(map[int64]*models.RoomSummary, len(loaded))
	for i := range loaded {
		summary := loaded[i]
		if prev, ok := s.rooms[summary.RoomID]; ok && newer(prev.LastMessage, summary.LastMessage) {
			summary.LastMessage = prev.LastMessage
		}
		next[summary.RoomID] = &summary
	}
	s.rooms = next
	s.mu.Unlock()

	return s.Summaries(), nil
}

// UpdateLastMessage records msg as the room's latest message unless a later one is
// already known. Unknown rooms get a placeholder summary.
func (s *RoomService) UpdateLastMessage(roomID int64, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = &models.RoomSummary{RoomID: roomID, Name: fmt.Sprintf("Room %d", roomID)}
		s.rooms[roomID] = room
	}
	if newer(room.LastMessage, &msg) {
		return
	}
	m := msg
	room.LastMessage = &m
}

func (s *RoomService) Get(roomID int64) (models.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.RoomSummary{}, false
	}
	return copySummary(room), true
}

// Summaries returns every room, most recent activity first. Rooms without messages
// follow in id order.
func (s *RoomService) Summaries() []models.RoomSummary {
	s.mu.RLock()
	out := make([]models.RoomSummary, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, copySummary(room))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a != nil && b != nil && !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (s *RoomService) Reset() {
	s.mu.Lock()
	s.rooms = make(map[int64]*models.RoomSummary)
	s.mu.Unlock()
}

// newer reports whether current is strictly later than candidate.
func newer(current, candidate *models.Message) bool {
	if current == nil {
		return false
	}
	if candidate == nil {
		return true
	}
	if current.CreatedAt.Equal(candidate.CreatedAt) {
		return current.MessageID > candidate.MessageID
	}
	return current.CreatedAt.After(candidate.CreatedAt)
}

func copySummary(room *models.RoomSummary) models.RoomSummary {
	out := *room
	if room.LastMessage != nil {
		m := *room.LastMessage
		out.LastMessage = &m
	}
	return out
}
