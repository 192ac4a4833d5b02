package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zarkopopovski/persona-chat/exchange"
	"github.com/zarkopopovski/persona-chat/models"
)

// fakeAPI is an in-memory chat service.
type fakeAPI struct {
	mu sync.Mutex

	sessions  []models.ChatSession
	messages  map[string][]models.Message
	nextID    int
	exchanges []exchange.Request

	exchangeErr error
	listErr     error
	createErr   error
	// token, when set, names the caller; sessions are listed per user.
	token func() string
	// block, when set, holds Exchange until it is closed.
	block chan struct{}
	// entered receives a value when Exchange starts.
	entered chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[string][]models.Message)}
}

func (f *fakeAPI) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeAPI) user() string {
	if f.token == nil {
		return "alice"
	}
	return strings.TrimPrefix(f.token(), "token-")
}

func (f *fakeAPI) seedSession(name string, createdAt time.Time) models.ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	chatSession := models.ChatSession{ID: f.id("session"), ProjectID: "project-1", UserID: "alice", Name: name, CreatedAt: createdAt}
	f.sessions = append(f.sessions, chatSession)
	return chatSession
}

func (f *fakeAPI) ListSessions(_ context.Context, projectID string) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]models.ChatSession, 0, len(f.sessions))
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].ProjectID == projectID && f.sessions[i].UserID == f.user() {
			result = append(result, f.sessions[i])
		}
	}
	return result, nil
}

func (f *fakeAPI) CreateSession(_ context.Context, projectID, name string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	chatSession := models.ChatSession{ID: f.id("session"), ProjectID: projectID, UserID: f.user(), Name: name, CreatedAt: time.Now()}
	f.sessions = append(f.sessions, chatSession)
	return &chatSession, nil
}

func (f *fakeAPI) DeleteSession(_ context.Context, chatSessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, chatSession := range f.sessions {
		if chatSession.ID == chatSessionID {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			delete(f.messages, chatSessionID)
			return nil
		}
	}
	return &APIError{Status: 404, Message: "Not Found"}
}

func (f *fakeAPI) ListMessages(_ context.Context, chatSessionID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Message(nil), f.messages[chatSessionID]...), nil
}

func (f *fakeAPI) Exchange(_ context.Context, req exchange.Request) (*exchange.Result, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.exchanges = append(f.exchanges, req)

	user := models.Message{ID: f.id("message"), ChatSessionID: req.ChatSessionID, UserID: "alice", Role: models.RoleUser, Content: req.Message}
	f.messages[req.ChatSessionID] = append(f.messages[req.ChatSessionID], user)

	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}

	reply := "echo: " + req.Message
	assistant := models.Message{ID: f.id("message"), ChatSessionID: req.ChatSessionID, UserID: "alice", Role: models.RoleAssistant, Content: reply}
	f.messages[req.ChatSessionID] = append(f.messages[req.ChatSessionID], assistant)

	return &exchange.Result{Message: reply}, nil
}

func (f *fakeAPI) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.exchanges)
}

var errUpstream = errors.New("bad gateway")
