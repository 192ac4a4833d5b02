package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarkopopovski/persona-chat/models"
)

func newTestDB(t *testing.T) *DBManager {
	t.Helper()

	dbm, err := NewDBConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbm.Close() })

	return dbm
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func createProject(t *testing.T, dbm *DBManager, userID, name string) *models.Project {
	t.Helper()

	project := &models.Project{UserID: userID, Name: name, SystemPrompt: "You are a sales bot"}
	require.NoError(t, dbm.InsertProject(context.Background(), project))
	return project
}

func createSession(t *testing.T, dbm *DBManager, project *models.Project) *models.ChatSession {
	t.Helper()

	chatSession := &models.ChatSession{ProjectID: project.ID, UserID: project.UserID}
	require.NoError(t, dbm.InsertChatSession(context.Background(), chatSession))
	return chatSession
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbm := newTestDB(t)

	assert.NoError(t, migrateUp(dbm.DB))
}

func TestProjectOwnership(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")

	got, err := dbm.GetProjectForUser(ctx, "alice", project.ID)
	require.NoError(t, err)
	assert.Equal(t, "You are a sales bot", got.SystemPrompt)

	_, err = dbm.GetProjectForUser(ctx, "mallory", project.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dbm.GetProjectForUser(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjectsNewestFirst(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)
	dbm.SetClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute))

	first := createProject(t, dbm, "alice", "first")
	second := createProject(t, dbm, "alice", "second")
	createProject(t, dbm, "bob", "other")

	projects, err := dbm.ListProjects(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, second.ID, projects[0].ID)
	assert.Equal(t, first.ID, projects[1].ID)
}

func TestUpdateProject(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")
	project.SystemPrompt = "You are a support bot"
	require.NoError(t, dbm.UpdateProject(ctx, project))

	got, err := dbm.GetProjectForUser(ctx, "alice", project.ID)
	require.NoError(t, err)
	assert.Equal(t, "You are a support bot", got.SystemPrompt)

	stolen := *project
	stolen.UserID = "mallory"
	assert.ErrorIs(t, dbm.UpdateProject(ctx, &stolen), ErrNotFound)
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")
	chatSession := createSession(t, dbm, project)
	require.NoError(t, dbm.InsertMessage(ctx, &models.Message{ChatSessionID: chatSession.ID, UserID: "alice", Role: models.RoleUser, Content: "hi"}))
	require.NoError(t, dbm.InsertProjectFile(ctx, &models.ProjectFile{ProjectID: project.ID, UserID: "alice", FileID: "file-1", Filename: "a.pdf", Purpose: "assistants"}))

	assert.ErrorIs(t, dbm.DeleteProject(ctx, "mallory", project.ID), ErrNotFound)
	require.NoError(t, dbm.DeleteProject(ctx, "alice", project.ID))

	_, err := dbm.GetChatSession(ctx, "alice", chatSession.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var remaining int
	require.NoError(t, dbm.DB.Get(&remaining, "SELECT COUNT(*) FROM messages"))
	assert.Zero(t, remaining)
	require.NoError(t, dbm.DB.Get(&remaining, "SELECT COUNT(*) FROM project_files"))
	assert.Zero(t, remaining)
}

func TestChatSessionDefaultsAndOrdering(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)
	dbm.SetClock(steppingClock(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), time.Second))

	project := createProject(t, dbm, "alice", "Sales")
	older := createSession(t, dbm, project)
	newer := createSession(t, dbm, project)

	assert.Contains(t, older.Name, "Chat ")

	sessions, err := dbm.ListChatSessions(ctx, "alice", project.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)

	sessions, err = dbm.ListChatSessions(ctx, "bob", project.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRenameAndDeleteChatSession(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")
	chatSession := createSession(t, dbm, project)
	require.NoError(t, dbm.InsertMessage(ctx, &models.Message{ChatSessionID: chatSession.ID, UserID: "alice", Role: models.RoleUser, Content: "hi"}))

	require.NoError(t, dbm.RenameChatSession(ctx, "alice", chatSession.ID, "Pricing"))
	got, err := dbm.GetChatSession(ctx, "alice", chatSession.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pricing", got.Name)

	assert.ErrorIs(t, dbm.DeleteChatSession(ctx, "mallory", chatSession.ID), ErrNotFound)
	require.NoError(t, dbm.DeleteChatSession(ctx, "alice", chatSession.ID))

	messages, err := dbm.ListMessages(ctx, "alice", chatSession.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestListMessagesOrderedWithinSameTick(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")
	chatSession := createSession(t, dbm, project)

	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dbm.SetClock(func() time.Time { return frozen })

	contents := []string{"one", "two", "three", "four"}
	for i, content := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		require.NoError(t, dbm.InsertMessage(ctx, &models.Message{ChatSessionID: chatSession.ID, UserID: "alice", Role: role, Content: content}))
	}

	messages, err := dbm.ListMessages(ctx, "alice", chatSession.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, message := range messages {
		assert.Equal(t, contents[i], message.Content)
		if i > 0 {
			assert.False(t, message.CreatedAt.Before(messages[i-1].CreatedAt))
		}
	}
}

func TestListMessagesNonDecreasingAcrossTicks(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	project := createProject(t, dbm, "alice", "Sales")
	chatSession := createSession(t, dbm, project)

	dbm.SetClock(steppingClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), 137*time.Millisecond))
	for i := 0; i < 20; i++ {
		require.NoError(t, dbm.InsertMessage(ctx, &models.Message{ChatSessionID: chatSession.ID, UserID: "alice", Role: models.RoleUser, Content: "m"}))
	}

	messages, err := dbm.ListMessages(ctx, "alice", chatSession.ID)
	require.NoError(t, err)
	require.Len(t, messages, 20)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i].CreatedAt.After(messages[i-1].CreatedAt), "message %d out of order", i)
	}
}

func TestInsertMessageRejectsSystemRole(t *testing.T) {
	dbm := newTestDB(t)

	err := dbm.InsertMessage(context.Background(), &models.Message{ChatSessionID: "s", UserID: "alice", Role: models.RoleSystem, Content: "x"})
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	dbm := newTestDB(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dbm.SetClock(func() time.Time { return now })

	require.NoError(t, dbm.InsertToken(ctx, models.TokenTypeAccess, "live", "alice", now.Add(time.Minute)))
	require.NoError(t, dbm.InsertToken(ctx, models.TokenTypeAccess, "stale", "alice", now.Add(-time.Minute)))

	userID, err := dbm.TokenUserID(ctx, models.TokenTypeAccess, "live")
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = dbm.TokenUserID(ctx, models.TokenTypeAccess, "stale")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dbm.TokenUserID(ctx, models.TokenTypeRefresh, "live")
	assert.ErrorIs(t, err, ErrNotFound)

	purged, err := dbm.DeleteExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	deleted, err := dbm.DeleteToken(ctx, models.TokenTypeAccess, "live")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
