package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/store"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"
)

var ErrInvalidRoom = errors.New("invalid room id")

type Connection interface {
	Health() websocket.Health
	Send(frame models.OutboundFrame) error
}

type RoomSwitcher interface {
	SwitchTo(roomID int64) error
	Active() (int64, bool)
}

type HistoryAPI interface {
	GetRoomMessages(ctx context.Context, roomID int64, limit, offset int) ([]models.MessagePayload, error)
}

type HistoryArchive interface {
	LoadRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
}

type ChatDeps struct {
	Connection   Connection
	Queue        RoomSwitcher
	Rooms        *RoomService
	Messages     *store.MessageStore
	History      HistoryAPI
	Archive      HistoryArchive
	SelfID       func() string
	HistoryLimit int
}

// ChatService is the surface the UI talks to. Nothing here blocks on the realtime
// connection; history fetches block on REST only.
type ChatService struct {
	conn         Connection
	queue        RoomSwitcher
	rooms        *RoomService
	messages     *store.MessageStore
	history      HistoryAPI
	archive      HistoryArchive
	selfID       func() string
	historyLimit int
}

func NewChatService(deps ChatDeps) *ChatService {
	if deps.SelfID == nil {
		deps.SelfID = func() string { return "" }
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 50
	}
	return &ChatService{
		conn:         deps.Connection,
		queue:        deps.Queue,
		rooms:        deps.Rooms,
		messages:     deps.Messages,
		history:      deps.History,
		archive:      deps.Archive,
		selfID:       deps.SelfID,
		historyLimit: deps.HistoryLimit,
	}
}

func (s *ChatService) ConnectionHealth() websocket.Health {
	return s.conn.Health()
}

// RoomMessages returns the room's messages in display order.
func (s *ChatService) RoomMessages(roomID int64) []models.Message {
	return s.messages.View(roomID)
}

func (s *ChatService) RoomSummaries() []models.RoomSummary {
	return s.rooms.Summaries()
}

func (s *ChatService) ActiveRoom() (int64, bool) {
	return s.queue.Active()
}

func (s *ChatService) LoadRooms(ctx context.Context) ([]models.RoomSummary, error) {
	return s.rooms.Load(ctx)
}

// SendMessage validates content and sends it on the realtime connection. Sends are
// never queued: while disconnected it fails with websocket.ErrNotConnected.
func (s *ChatService) SendMessage(roomID int64, content string) error {
	if roomID <= 0 {
		return ErrInvalidRoom
	}
	trimmed, err := models.ValidateOutgoingContent(content)
	if err != nil {
		return err
	}
	if err := s.conn.Send(models.SendMessageFrame(roomID, trimmed)); err != nil {
		return fmt.Errorf("send to room %d: %w", roomID, err)
	}
	return nil
}

// SelectRoom makes roomID the active room and merges its history into the store.
// The subscription switch happens even when the history fetch fails.
func (s *ChatService) SelectRoom(ctx context.Context, roomID int64) error {
	if roomID <= 0 {
		return ErrInvalidRoom
	}
	if err := s.queue.SwitchTo(roomID); err != nil {
		return fmt.Errorf("switch to room %d: %w", roomID, err)
	}

	history, err := s.fetchHistory(ctx, roomID)
	if err != nil {
		return err
	}
	added := s.messages.ReplaceHistory(roomID, history)
	if n := len(history); n > 0 {
		s.rooms.UpdateLastMessage(roomID, history[n-1])
	}
	logger.Debug("Room %d history: %d fetched, %d new", roomID, len(history), added)
	return nil
}

func (s *ChatService) fetchHistory(ctx context.Context, roomID int64) ([]models.Message, error) {
	payloads, err := s.history.GetRoomMessages(ctx, roomID, s.historyLimit, 0)
	if err == nil {
		return s.normalizeHistory(roomID, payloads), nil
	}
	if s.archive == nil {
		return nil, fmt.Errorf("failed to load history for room %d: %w", roomID, err)
	}

	logger.Warn("History fetch for room %d failed, using archive: %v", roomID, err)
	archived, archiveErr := s.archive.LoadRecentMessages(ctx, roomID, s.historyLimit)
	if archiveErr != nil {
		return nil, fmt.Errorf("failed to load history for room %d: %w", roomID, errors.Join(err, archiveErr))
	}
	selfID := models.CanonicalUserID(s.selfID())
	for i := range archived {
		archived[i].IsOwn = selfID != "" && archived[i].SenderID == selfID
	}
	return archived, nil
}

// normalizeHistory drops invalid entries and returns the rest oldest first.
func (s *ChatService) normalizeHistory(roomID int64, payloads []models.MessagePayload) []models.Message {
	selfID := s.selfID()
	out := make([]models.Message, 0, len(payloads))
	for _, p := range payloads {
		msg, err := models.NormalizeMessage(p, roomID, "", selfID, time.Now())
		if err != nil {
			logger.Debug("Skipping history entry in room %d: %v", roomID, err)
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Reset drops all per-session data, e.g. after logout.
func (s *ChatService) Reset() {
	s.messages.Reset()
	s.rooms.Reset()
}
