package controllers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/exchange"
	"github.com/zarkopopovski/persona-chat/models"
)

type ChatController struct {
	DBManager      *db.DBManager
	AuthController *AuthController
	Orchestrator   *exchange.Orchestrator
	Logger         *zap.Logger
}

// Completion runs one message exchange for the authenticated user.
func (chatController *ChatController) Completion(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	var req exchange.Request
	if err := parseRequestBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := chatController.Orchestrator.Exchange(r.Context(), userID, req)
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			chatController.Logger.Error("chat completion failed",
				zap.String("user_id", userID),
				zap.String("chat_session_id", req.ChatSessionID),
				zap.Error(err),
			)
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (chatController *ChatController) ListChatSessions(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	projectID := r.PathValue("projectID")

	if _, err := chatController.DBManager.GetProjectForUser(ctx, userID, projectID); err != nil {
		chatController.fail(w, "load project", err)
		return
	}

	chatSessions, err := chatController.DBManager.ListChatSessions(ctx, userID, projectID)
	if err != nil {
		chatController.fail(w, "list chat sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": chatSessions})
}

// CreateChatSession starts a session in the project. The name is optional.
func (chatController *ChatController) CreateChatSession(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := parseOptionalBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ctx := r.Context()
	projectID := r.PathValue("projectID")

	if _, err := chatController.DBManager.GetProjectForUser(ctx, userID, projectID); err != nil {
		chatController.fail(w, "load project", err)
		return
	}

	chatSession := &models.ChatSession{
		ProjectID: projectID,
		UserID:    userID,
		Name:      strings.TrimSpace(body.Name),
	}
	if err := chatController.DBManager.InsertChatSession(ctx, chatSession); err != nil {
		chatController.fail(w, "create chat session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": chatSession})
}

func (chatController *ChatController) RenameChatSession(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := parseRequestBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	if err := chatController.DBManager.RenameChatSession(r.Context(), userID, r.PathValue("chatSessionID"), name); err != nil {
		chatController.fail(w, "rename chat session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully updated"})
}

func (chatController *ChatController) DeleteChatSession(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	if err := chatController.DBManager.DeleteChatSession(r.Context(), userID, r.PathValue("chatSessionID")); err != nil {
		chatController.fail(w, "delete chat session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully deleted"})
}

// GetChatSessionMessages returns the session transcript, oldest first.
func (chatController *ChatController) GetChatSessionMessages(w http.ResponseWriter, r *http.Request) {
	setJSONHeaders(w)

	userID, ok := chatController.AuthController.Authenticate(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	chatSessionID := r.PathValue("chatSessionID")

	if _, err := chatController.DBManager.GetChatSession(ctx, userID, chatSessionID); err != nil {
		chatController.fail(w, "load chat session", err)
		return
	}

	messages, err := chatController.DBManager.ListMessages(ctx, userID, chatSessionID)
	if err != nil {
		chatController.fail(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": messages})
}

func (chatController *ChatController) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, db.ErrNotFound) {
		chatController.Logger.Error(op+" failed", zap.Error(err))
	}
	status, message := errorStatus(err)
	writeError(w, status, message)
}
