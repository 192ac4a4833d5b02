package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zarkopopovski/persona-chat/exchange"
	"github.com/zarkopopovski/persona-chat/governor"
	"github.com/zarkopopovski/persona-chat/models"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSendInFlight    = errors.New("a message is already being sent")
	ErrNoActiveSession = errors.New("no active chat session")
)

// Phase is where the controller is in the send lifecycle.
type Phase int

const (
	PhasePendingInput Phase = iota
	PhaseInFlight
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseInFlight:
		return "in-flight"
	case PhaseSettled:
		return "settled"
	default:
		return "pending-input"
	}
}

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a user-facing message raised by the controller.
type Notice struct {
	Level       Level
	Title       string
	Description string
}

type Notifier func(Notice)

// API is what the controller needs from the chat service.
type API interface {
	SessionGateway
	Exchange(ctx context.Context, req exchange.Request) (*exchange.Result, error)
	ListMessages(ctx context.Context, chatSessionID string) ([]models.Message, error)
}

type ControllerConfig struct {
	ProjectID string
	API       API
	Identity  *IdentityHolder
	Governor  governor.Config
	Notifier  Notifier
	Clock     func() time.Time
}

// Controller coordinates one user's chat view of a project: the session
// list, the transcript of the active session, the input text and the send
// lifecycle. Every change of identity starts the view over: state is
// cleared, the rate governor is replaced and the sessions of the new user
// are loaded before the next send.
type Controller struct {
	projectID      string
	api            API
	sessions       *SessionStore
	governorConfig governor.Config
	notify         Notifier
	clock          func() time.Time
	unsubscribe    func()

	mu         sync.Mutex
	governor   *governor.Governor
	signedIn   bool
	needsLoad  bool
	generation uint64
	input      string
	phase      Phase
	transcript []models.Message
}

func NewController(cfg ControllerConfig) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	notify := cfg.Notifier
	if notify == nil {
		notify = func(Notice) {}
	}

	governorConfig := cfg.Governor
	if governorConfig.Clock == nil {
		governorConfig.Clock = clock
	}

	signedIn := cfg.Identity.Current().SignedIn()

	c := &Controller{
		projectID:      cfg.ProjectID,
		api:            cfg.API,
		sessions:       NewSessionStore(cfg.API, cfg.ProjectID, clock),
		governorConfig: governorConfig,
		governor:       governor.New(governorConfig),
		notify:         notify,
		clock:          clock,
		signedIn:       signedIn,
		needsLoad:      signedIn,
	}
	c.unsubscribe = cfg.Identity.Subscribe(c.identityChanged)
	return c
}

// Close detaches the controller from identity changes and cancels pending
// quota replenishments.
func (c *Controller) Close() {
	c.unsubscribe()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.governor.Stop()
}

func (c *Controller) identityChanged(identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.signedIn = identity.SignedIn()
	c.needsLoad = c.signedIn
	c.input = ""
	c.transcript = nil
	c.phase = PhasePendingInput
	c.sessions.Reset()

	c.governor.Stop()
	c.governor = governor.New(c.governorConfig)
}

// Load fetches the session list and the active session's transcript. A load
// overtaken by an identity change is discarded.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	if err := c.sessions.Load(ctx); err != nil {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to fetch chat sessions"})
		return err
	}

	c.mu.Lock()
	if generation != c.generation {
		c.sessions.Reset()
		c.mu.Unlock()
		return nil
	}
	c.needsLoad = false
	c.mu.Unlock()

	return c.reloadTranscript(ctx)
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input = text
	if c.phase == PhaseSettled {
		c.phase = PhasePendingInput
	}
}

// Send submits the current input to the active session. It refuses
// synchronously when the input is blank, a send is in flight, there is no
// active session, the user is signed out or the rate governor denies it.
// Sessions are loaded first when the identity changed since the last load.
// On failure the input is restored unless the user has typed something new.
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	err := c.checkInput()
	needsLoad := c.needsLoad
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if needsLoad {
		if err := c.Load(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()

	if err := c.checkInput(); err != nil {
		c.mu.Unlock()
		return err
	}
	text := strings.TrimSpace(c.input)
	activeSession, ok := c.sessions.Active()
	if !ok {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if !c.signedIn {
		c.mu.Unlock()
		return ErrSignedOut
	}

	gov := c.governor
	generation := c.generation

	now := c.clock()
	if err := gov.CanSend(now); err != nil {
		c.mu.Unlock()
		c.notify(Notice{Level: LevelError, Title: "Rate Limited", Description: err.Error()})
		return err
	}

	original := c.input
	c.input = ""
	gov.RecordSend(now)
	c.phase = PhaseInFlight
	c.mu.Unlock()

	_, sendErr := c.api.Exchange(ctx, exchange.Request{
		Message:       text,
		ChatSessionID: activeSession.ID,
		ProjectID:     c.projectID,
	})

	messages, fetchErr := c.api.ListMessages(ctx, activeSession.ID)

	c.mu.Lock()
	if generation == c.generation {
		if fetchErr == nil && c.isActive(activeSession.ID) {
			c.transcript = messages
		}
		c.phase = PhaseSettled
		if sendErr != nil && c.input == "" {
			c.input = original
		}
	}
	c.mu.Unlock()

	if sendErr != nil {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to send message"})
		return fmt.Errorf("send message: %w", sendErr)
	}

	gov.ScheduleReplenish()

	if fetchErr != nil {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to fetch messages"})
	}
	return nil
}

// CreateSession starts a new session and clears the transcript.
func (c *Controller) CreateSession(ctx context.Context) (*models.ChatSession, error) {
	chatSession, err := c.sessions.Create(ctx)
	if err != nil {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to create new session"})
		return nil, err
	}

	c.mu.Lock()
	c.transcript = nil
	c.mu.Unlock()

	return chatSession, nil
}

func (c *Controller) SelectSession(ctx context.Context, chatSessionID string) error {
	if err := c.sessions.Select(chatSessionID); err != nil {
		return err
	}
	return c.reloadTranscript(ctx)
}

// DeleteSession deletes a session and reloads the transcript when the active
// session changed as a result.
func (c *Controller) DeleteSession(ctx context.Context, chatSessionID string) error {
	before, _ := c.sessions.Active()

	err := c.sessions.Delete(ctx, chatSessionID)
	if err != nil && !errors.Is(err, ErrNoReplacement) {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to delete session"})
		return err
	}
	c.notify(Notice{Level: LevelInfo, Title: "Success", Description: "Chat session deleted"})

	if err != nil {
		c.mu.Lock()
		c.transcript = nil
		c.mu.Unlock()

		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to create new session"})
		return err
	}

	after, _ := c.sessions.Active()
	if after.ID == before.ID {
		return nil
	}
	return c.reloadTranscript(ctx)
}

func (c *Controller) Sessions() []models.ChatSession {
	return c.sessions.Sessions()
}

func (c *Controller) ActiveSession() (models.ChatSession, bool) {
	return c.sessions.Active()
}

func (c *Controller) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.Message(nil), c.transcript...)
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.input
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.phase
}

func (c *Controller) RemainingQuota() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.governor.Remaining()
}

// checkInput rejects a blank input or a send already in flight. Callers hold
// c.mu.
func (c *Controller) checkInput() error {
	if strings.TrimSpace(c.input) == "" {
		return ErrEmptyMessage
	}
	if c.phase == PhaseInFlight {
		return ErrSendInFlight
	}
	return nil
}

func (c *Controller) reloadTranscript(ctx context.Context) error {
	activeSession, ok := c.sessions.Active()
	if !ok {
		c.mu.Lock()
		c.transcript = nil
		c.mu.Unlock()
		return nil
	}

	messages, err := c.api.ListMessages(ctx, activeSession.ID)
	if err != nil {
		c.notify(Notice{Level: LevelError, Title: "Error", Description: "Failed to fetch messages"})
		return fmt.Errorf("fetch messages: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isActive(activeSession.ID) {
		c.transcript = messages
	}
	return nil
}

func (c *Controller) isActive(chatSessionID string) bool {
	activeSession, ok := c.sessions.Active()
	return ok && activeSession.ID == chatSessionID
}
