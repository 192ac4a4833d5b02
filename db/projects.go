package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/twinj/uuid"

	"github.com/zarkopopovski/persona-chat/models"
)

func (dbm *DBManager) InsertProject(ctx context.Context, project *models.Project) error {
	project.ID = uuid.NewV4().String()
	project.CreatedAt = dbm.timestamp()
	project.UpdatedAt = project.CreatedAt

	queryStr := "INSERT INTO projects(id, user_id, name, description, system_prompt, created_at, updated_at) VALUES($1, $2, $3, $4, $5, $6, $7)"

	_, err := dbm.DB.ExecContext(ctx, queryStr, project.ID, project.UserID, project.Name, project.Description, project.SystemPrompt, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProjectForUser returns the project only when it is owned by userID.
func (dbm *DBManager) GetProjectForUser(ctx context.Context, userID, projectID string) (*models.Project, error) {
	queryStr := "SELECT * FROM projects WHERE id=$1 AND user_id=$2"

	project := models.Project{}

	err := dbm.DB.GetContext(ctx, &project, queryStr, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &project, nil
}

// ListProjects returns the user's projects, newest first.
func (dbm *DBManager) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	queryStr := "SELECT * FROM projects WHERE user_id=$1 ORDER BY created_at DESC, rowid DESC"

	projects := make([]models.Project, 0)

	if err := dbm.DB.SelectContext(ctx, &projects, queryStr, userID); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (dbm *DBManager) UpdateProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = dbm.timestamp()

	queryStr := "UPDATE projects SET name=$1, description=$2, system_prompt=$3, updated_at=$4 WHERE id=$5 AND user_id=$6"

	result, err := dbm.DB.ExecContext(ctx, queryStr, project.Name, project.Description, project.SystemPrompt, project.UpdatedAt, project.ID, project.UserID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(result)
}

// DeleteProject removes the project together with its sessions, their
// messages and its file records.
func (dbm *DBManager) DeleteProject(ctx context.Context, userID, projectID string) error {
	tx, err := dbm.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer tx.Rollback()

	deleteMessagesQuery := "DELETE FROM messages WHERE chat_session_id IN (SELECT id FROM chat_sessions WHERE project_id=$1 AND user_id=$2)"
	if _, err := tx.ExecContext(ctx, deleteMessagesQuery, projectID, userID); err != nil {
		return fmt.Errorf("delete project messages: %w", err)
	}

	deleteSessionsQuery := "DELETE FROM chat_sessions WHERE project_id=$1 AND user_id=$2"
	if _, err := tx.ExecContext(ctx, deleteSessionsQuery, projectID, userID); err != nil {
		return fmt.Errorf("delete project sessions: %w", err)
	}

	deleteFilesQuery := "DELETE FROM project_files WHERE project_id=$1 AND user_id=$2"
	if _, err := tx.ExecContext(ctx, deleteFilesQuery, projectID, userID); err != nil {
		return fmt.Errorf("delete project files: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id=$1 AND user_id=$2", projectID, userID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
