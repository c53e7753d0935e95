package database

import (
	"context"
	"fmt"

	"chat-client/internal/models"
	"chat-client/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_messages (
	room_id       BIGINT      NOT NULL,
	message_id    BIGINT      NOT NULL,
	sender_id     TEXT        NOT NULL,
	sender_name   TEXT        NOT NULL DEFAULT '',
	sender_email  TEXT        NOT NULL DEFAULT '',
	content       TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, message_id)
)`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to message archive")
	return &PostgresDB{pool: pool}, nil
}

// EnsureSchema creates the archive table when it does not exist.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// SaveMessage stores msg once per (room, message id); repeats are ignored.
func (db *PostgresDB) SaveMessage(ctx context.Context, msg models.Message) error {
	query := `
		INSERT INTO archived_messages (room_id, message_id, sender_id, sender_name, sender_email, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id, message_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query,
		msg.RoomID, msg.MessageID, msg.SenderID, msg.SenderDisplayName, msg.SenderEmail, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive message %d: %w", msg.MessageID, err)
	}
	return nil
}

// LoadRecentMessages returns up to limit of the newest archived messages, oldest first.
// IsOwn is left unset; callers know the session user.
func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	query := `
		SELECT room_id, message_id, sender_id, sender_name, sender_email, content, created_at
		FROM archived_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, message_id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.RoomID, &msg.MessageID, &msg.SenderID, &msg.SenderDisplayName,
			&msg.SenderEmail, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
