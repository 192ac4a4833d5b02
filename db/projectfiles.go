package db

import (
	"context"
	"fmt"

	"github.com/twinj/uuid"

	"github.com/zarkopopovski/persona-chat/models"
)

func (dbm *DBManager) InsertProjectFile(ctx context.Context, file *models.ProjectFile) error {
	file.ID = uuid.NewV4().String()
	file.CreatedAt = dbm.timestamp()

	queryStr := "INSERT INTO project_files(id, project_id, user_id, file_id, filename, bytes, status, purpose, created_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)"

	_, err := dbm.DB.ExecContext(ctx, queryStr, file.ID, file.ProjectID, file.UserID, file.FileID, file.Filename, file.Bytes, file.Status, file.Purpose, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project file: %w", err)
	}
	return nil
}

func (dbm *DBManager) ListProjectFiles(ctx context.Context, userID, projectID string) ([]models.ProjectFile, error) {
	queryStr := "SELECT * FROM project_files WHERE user_id=$1 AND project_id=$2 ORDER BY created_at DESC, rowid DESC"

	files := make([]models.ProjectFile, 0)

	if err := dbm.DB.SelectContext(ctx, &files, queryStr, userID, projectID); err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	return files, nil
}
