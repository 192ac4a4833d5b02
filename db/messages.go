package db

import (
	"context"
	"fmt"

	"github.com/twinj/uuid"

	"github.com/zarkopopovski/persona-chat/models"
)

func (dbm *DBManager) InsertMessage(ctx context.Context, message *models.Message) error {
	if !message.Role.Valid() {
		return fmt.Errorf("insert message: invalid role %q", message.Role)
	}

	message.ID = uuid.NewV4().String()
	message.CreatedAt = dbm.timestamp()

	queryStr := "INSERT INTO messages(id, chat_session_id, user_id, role, content, created_at) VALUES($1, $2, $3, $4, $5, $6)"

	_, err := dbm.DB.ExecContext(ctx, queryStr, message.ID, message.ChatSessionID, message.UserID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the session transcript oldest first. Rows written
// within the same clock tick keep their insertion order.
func (dbm *DBManager) ListMessages(ctx context.Context, userID, chatSessionID string) ([]models.Message, error) {
	queryStr := "SELECT * FROM messages WHERE chat_session_id=$1 AND user_id=$2 ORDER BY created_at ASC, rowid ASC"

	messages := make([]models.Message, 0)

	if err := dbm.DB.SelectContext(ctx, &messages, queryStr, chatSessionID, userID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
