// Package exchange turns one user message into a persisted conversation
// turn and a model reply.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/completion"
	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("message is required")
	ErrNotFound     = errors.New("project or chat session not found")
)

type Request struct {
	Message       string `json:"message"`
	ChatSessionID string `json:"chatSessionId"`
	ProjectID     string `json:"projectId"`
}

type Result struct {
	Message string            `json:"message"`
	Usage   *completion.Usage `json:"usage,omitempty"`
}

// Store is the slice of the persistence gateway the orchestrator needs.
type Store interface {
	GetProjectForUser(ctx context.Context, userID, projectID string) (*models.Project, error)
	GetChatSession(ctx context.Context, userID, chatSessionID string) (*models.ChatSession, error)
	ListMessages(ctx context.Context, userID, chatSessionID string) ([]models.Message, error)
	InsertMessage(ctx context.Context, message *models.Message) error
}

type Orchestrator struct {
	Store   Store
	Backend completion.Backend
	Logger  *zap.Logger
}

func NewOrchestrator(store Store, backend completion.Backend, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{Store: store, Backend: backend, Logger: logger}
}

// Exchange replays the session history with the project's system prompt,
// asks the backend for a reply and appends both turns to the transcript.
// Failures to save a turn are logged and do not fail the exchange.
func (o *Orchestrator) Exchange(ctx context.Context, userID string, req Request) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrValidation
	}

	project, err := o.Store.GetProjectForUser(ctx, userID, req.ProjectID)
	if err != nil {
		return nil, notFound("load project", err)
	}

	chatSession, err := o.Store.GetChatSession(ctx, userID, req.ChatSessionID)
	if err != nil {
		return nil, notFound("load chat session", err)
	}
	if chatSession.ProjectID != project.ID {
		return nil, ErrNotFound
	}

	logger := o.Logger.With(
		zap.String("user_id", userID),
		zap.String("chat_session_id", chatSession.ID),
	)

	// An unreadable transcript is replaced by an empty history.
	history, err := o.Store.ListMessages(ctx, userID, chatSession.ID)
	if err != nil {
		logger.Error("failed to load transcript", zap.Error(err))
		history = nil
	}

	o.saveTurn(ctx, logger, userID, chatSession.ID, models.RoleUser, req.Message)

	reply, err := o.Backend.Complete(ctx, assemble(project.SystemPrompt, history, req.Message))
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		return nil, err
	}

	o.saveTurn(ctx, logger, userID, chatSession.ID, models.RoleAssistant, reply.Content)

	return &Result{Message: reply.Content, Usage: reply.Usage}, nil
}

func (o *Orchestrator) saveTurn(ctx context.Context, logger *zap.Logger, userID, chatSessionID string, role models.Role, content string) {
	message := &models.Message{
		ChatSessionID: chatSessionID,
		UserID:        userID,
		Role:          role,
		Content:       content,
	}
	if err := o.Store.InsertMessage(ctx, message); err != nil {
		logger.Error("failed to save message", zap.String("role", string(role)), zap.Error(err))
	}
}

// assemble builds the turn list: system prompt first when set, then the
// stored history, then the new user message.
func assemble(systemPrompt string, history []models.Message, message string) []completion.Turn {
	turns := make([]completion.Turn, 0, len(history)+2)
	if systemPrompt != "" {
		turns = append(turns, completion.Turn{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		turns = append(turns, completion.Turn{Role: m.Role, Content: m.Content})
	}
	return append(turns, completion.Turn{Role: models.RoleUser, Content: message})
}

func notFound(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
