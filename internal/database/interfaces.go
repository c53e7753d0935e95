package database

import (
	"context"

	"chat-client/internal/models"
)

// MessageArchive persists observed messages locally so a room can still show
// history when the REST backend is unreachable.
type MessageArchive interface {
	SaveMessage(ctx context.Context, msg models.Message) error
	LoadRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	Close() error
}
