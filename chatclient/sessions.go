package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zarkopopovski/persona-chat/models"
)

var (
	ErrUnknownSession = errors.New("chat session is not listed for this project")
	// ErrNoReplacement means a delete succeeded but the session meant to
	// replace it could not be created.
	ErrNoReplacement = errors.New("no replacement chat session")
)

type SessionGateway interface {
	ListSessions(ctx context.Context, projectID string) ([]models.ChatSession, error)
	CreateSession(ctx context.Context, projectID, name string) (*models.ChatSession, error)
	DeleteSession(ctx context.Context, chatSessionID string) error
}

// SessionStore is the client's view of one project's chat sessions, newest
// first, with at most one of them active.
type SessionStore struct {
	gateway   SessionGateway
	projectID string
	clock     func() time.Time

	mu       sync.Mutex
	sessions []models.ChatSession
	activeID string
}

func NewSessionStore(gateway SessionGateway, projectID string, clock func() time.Time) *SessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &SessionStore{gateway: gateway, projectID: projectID, clock: clock}
}

// Load fetches the project's sessions and activates the newest. A project
// without sessions gets a fresh one.
func (s *SessionStore) Load(ctx context.Context) error {
	sessions, err := s.gateway.ListSessions(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("load chat sessions: %w", err)
	}

	if len(sessions) == 0 {
		s.mu.Lock()
		s.sessions = nil
		s.activeID = ""
		s.mu.Unlock()

		_, err := s.Create(ctx)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = sessions
	s.activeID = sessions[0].ID
	return nil
}

// Create starts a new session named after the current time and makes it
// active.
func (s *SessionStore) Create(ctx context.Context) (*models.ChatSession, error) {
	name := models.DefaultSessionName(s.clock())

	chatSession, err := s.gateway.CreateSession(ctx, s.projectID, name)
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]models.ChatSession{*chatSession}, s.sessions...)
	s.activeID = chatSession.ID

	created := *chatSession
	return &created, nil
}

// Delete removes the session. When it was the active one the next most
// recent session takes over, or a new one is created if none remain. If that
// creation fails the store is left with no active session and the error
// wraps ErrNoReplacement; the delete itself has already happened.
func (s *SessionStore) Delete(ctx context.Context, chatSessionID string) error {
	if err := s.gateway.DeleteSession(ctx, chatSessionID); err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}

	s.mu.Lock()
	remaining := make([]models.ChatSession, 0, len(s.sessions))
	for _, chatSession := range s.sessions {
		if chatSession.ID != chatSessionID {
			remaining = append(remaining, chatSession)
		}
	}
	s.sessions = remaining

	wasActive := s.activeID == chatSessionID
	if wasActive {
		s.activeID = ""
		if len(remaining) > 0 {
			s.activeID = remaining[0].ID
		}
	}
	needsNew := wasActive && len(remaining) == 0
	s.mu.Unlock()

	if needsNew {
		if _, err := s.Create(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNoReplacement, err)
		}
	}
	return nil
}

func (s *SessionStore) Select(chatSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chatSession := range s.sessions {
		if chatSession.ID == chatSessionID {
			s.activeID = chatSessionID
			return nil
		}
	}
	return ErrUnknownSession
}

func (s *SessionStore) Sessions() []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ChatSession(nil), s.sessions...)
}

func (s *SessionStore) Active() (models.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chatSession := range s.sessions {
		if chatSession.ID == s.activeID {
			return chatSession, true
		}
	}
	return models.ChatSession{}, false
}

// Reset forgets every session, as after sign-out.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.activeID = ""
}
