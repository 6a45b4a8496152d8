package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/storage/models"
	"github.com/pulseboard/backend/pkg/apperrors"
	"github.com/pulseboard/backend/pkg/logger"
)

// UpsertConversation writes the user's single conversation row, replacing
// messages and updated_at when one already exists.
func (c *Client) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	var title any
	if conv.Title != nil {
		title = *conv.Title
	}

	query := `
		INSERT INTO chat_conversations (id, user_id, messages, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		string(messages),
		title,
		toMillis(conv.CreatedAt),
		toMillis(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	logger.Debug("Conversation stored",
		zap.String("user_id", conv.UserID),
		zap.Int("messages", len(conv.Messages)),
	)
	return nil
}

func (c *Client) GetConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	var messages string
	var title sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, user_id, messages, title, created_at, updated_at FROM chat_conversations WHERE user_id = ?`,
		userID,
	).Scan(&conv.ID, &conv.UserID, &messages, &title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if title.Valid {
		conv.Title = &title.String
	}
	conv.CreatedAt = fromMillis(createdAt)
	conv.UpdatedAt = fromMillis(updatedAt)

	return &conv, nil
}
