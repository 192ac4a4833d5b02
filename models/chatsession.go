package models

import "time"

type ChatSession struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DefaultSessionName is the label given to sessions created without a name.
func DefaultSessionName(t time.Time) string {
	return "Chat " + t.Local().Format("2006-01-02 15:04:05")
}
