package models

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may be stored as a transcript turn.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Message struct {
	ID            string    `json:"id" db:"id"`
	ChatSessionID string    `json:"chat_session_id" db:"chat_session_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Role          Role      `json:"role" db:"role"`
	Content       string    `json:"content" db:"content"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
