package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/twinj/uuid"

	"github.com/zarkopopovski/persona-chat/models"
)

// InsertChatSession stores a new session. An empty name is replaced by the
// timestamp-derived default.
func (dbm *DBManager) InsertChatSession(ctx context.Context, chatSession *models.ChatSession) error {
	chatSession.ID = uuid.NewV4().String()
	chatSession.CreatedAt = dbm.timestamp()
	if chatSession.Name == "" {
		chatSession.Name = models.DefaultSessionName(chatSession.CreatedAt)
	}

	querySessionStr := "INSERT INTO chat_sessions(id, project_id, user_id, name, created_at) VALUES($1, $2, $3, $4, $5)"

	_, err := dbm.DB.ExecContext(ctx, querySessionStr, chatSession.ID, chatSession.ProjectID, chatSession.UserID, chatSession.Name, chatSession.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (dbm *DBManager) GetChatSession(ctx context.Context, userID, chatSessionID string) (*models.ChatSession, error) {
	queryStr := "SELECT * FROM chat_sessions WHERE id=$1 AND user_id=$2"

	chatSession := models.ChatSession{}

	err := dbm.DB.GetContext(ctx, &chatSession, queryStr, chatSessionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	return &chatSession, nil
}

// ListChatSessions returns the project's sessions owned by userID, newest first.
func (dbm *DBManager) ListChatSessions(ctx context.Context, userID, projectID string) ([]models.ChatSession, error) {
	queryStr := "SELECT * FROM chat_sessions WHERE user_id=$1 AND project_id=$2 ORDER BY created_at DESC, rowid DESC"

	chatSessions := make([]models.ChatSession, 0)

	if err := dbm.DB.SelectContext(ctx, &chatSessions, queryStr, userID, projectID); err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	return chatSessions, nil
}

func (dbm *DBManager) RenameChatSession(ctx context.Context, userID, chatSessionID, name string) error {
	result, err := dbm.DB.ExecContext(ctx, "UPDATE chat_sessions SET name=$1 WHERE id=$2 AND user_id=$3", name, chatSessionID, userID)
	if err != nil {
		return fmt.Errorf("rename chat session: %w", err)
	}
	return requireAffected(result)
}

// DeleteChatSession removes the session and its transcript.
func (dbm *DBManager) DeleteChatSession(ctx context.Context, userID, chatSessionID string) error {
	tx, err := dbm.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete chat session: %w", err)
	}
	defer tx.Rollback()

	deleteSessionMessagesQuery := "DELETE FROM messages WHERE chat_session_id=$1 AND user_id=$2"
	if _, err := tx.ExecContext(ctx, deleteSessionMessagesQuery, chatSessionID, userID); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2", chatSessionID, userID)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}
