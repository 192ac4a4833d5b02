package models

import "time"

type ProjectFile struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	UserID    string    `json:"-" db:"user_id"`
	FileID    string    `json:"file_id" db:"file_id"`
	Filename  string    `json:"filename" db:"filename"`
	Bytes     int64     `json:"bytes" db:"bytes"`
	Status    string    `json:"status" db:"status"`
	Purpose   string    `json:"purpose" db:"purpose"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
