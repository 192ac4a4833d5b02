package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zarkopopovski/persona-chat/completion"
	"github.com/zarkopopovski/persona-chat/config"
	"github.com/zarkopopovski/persona-chat/controllers"
	"github.com/zarkopopovski/persona-chat/db"
	"github.com/zarkopopovski/persona-chat/exchange"
	"github.com/zarkopopovski/persona-chat/logging"
	"github.com/zarkopopovski/persona-chat/models"
)

const tokenPurgeInterval = time.Hour

type Handlers struct {
	Authentication    *controllers.AuthController
	ChatController    *controllers.ChatController
	ProjectController *controllers.ProjectController
	FileController    *controllers.FileController
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbHandler, err := db.NewDBConnection(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer dbHandler.Close()

	completionConfig := completion.Config{
		Token:       cfg.OpenAIToken,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}

	authController := &controllers.AuthController{
		DBManager:     dbHandler,
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		Logger:        logger.Named("auth"),
	}

	handlers := &Handlers{
		Authentication: authController,
		ChatController: &controllers.ChatController{
			DBManager:      dbHandler,
			AuthController: authController,
			Orchestrator: exchange.NewOrchestrator(
				dbHandler,
				completion.NewOpenAIBackend(completionConfig),
				logger.Named("exchange"),
			),
			Logger: logger.Named("chat"),
		},
		ProjectController: &controllers.ProjectController{
			DBManager:      dbHandler,
			AuthController: authController,
			Logger:         logger.Named("projects"),
		},
		FileController: &controllers.FileController{
			DBManager:      dbHandler,
			AuthController: authController,
			Uploader:       completion.NewFileUploader(completionConfig),
			MaxUploadSize:  cfg.MaxUploadSize,
			Logger:         logger.Named("files"),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.BootstrapUserID != "" {
		td, err := authController.IssueTokens(ctx, cfg.BootstrapUserID)
		if err != nil {
			return fmt.Errorf("issue bootstrap token: %w", err)
		}
		announceBootstrapTokens(os.Stderr, logger, cfg.BootstrapUserID, td)
	}

	go purgeExpiredTokens(ctx, dbHandler, logger)

	thisServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(handlers, logger),
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("start listening", zap.String("port", cfg.Port))
		if err := thisServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("graceful shutdown")

	timeOutContext, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return thisServer.Shutdown(timeOutContext)
}

// newHandler wraps the routes with request logging and a permissive CORS
// layer that answers preflight requests.
func newHandler(handlers *Handlers, logger *zap.Logger) http.Handler {
	httpRouter := http.NewServeMux()
	registerRoutes(httpRouter, handlers)

	return cors.AllowAll().Handler(logging.Middleware(logger)(httpRouter))
}

func registerRoutes(httpRouter *http.ServeMux, handlers *Handlers) {
	//AUTH
	httpRouter.HandleFunc("POST /api/v1/auth/refresh", handlers.Authentication.Refresh)
	httpRouter.HandleFunc("POST /api/v1/auth/logout", handlers.Authentication.Logout)

	//PROJECTS
	httpRouter.HandleFunc("POST /api/v1/projects", handlers.ProjectController.CreateProject)
	httpRouter.HandleFunc("GET /api/v1/projects", handlers.ProjectController.ListProjects)
	httpRouter.HandleFunc("GET /api/v1/projects/{projectID}", handlers.ProjectController.GetProject)
	httpRouter.HandleFunc("PUT /api/v1/projects/{projectID}", handlers.ProjectController.UpdateProject)
	httpRouter.HandleFunc("DELETE /api/v1/projects/{projectID}", handlers.ProjectController.DeleteProject)
	httpRouter.HandleFunc("GET /api/v1/projects/{projectID}/files", handlers.ProjectController.ListProjectFiles)

	//CHAT
	httpRouter.HandleFunc("POST /api/v1/chat/completion", handlers.ChatController.Completion)
	httpRouter.HandleFunc("GET /api/v1/projects/{projectID}/chat-sessions", handlers.ChatController.ListChatSessions)
	httpRouter.HandleFunc("POST /api/v1/projects/{projectID}/chat-sessions", handlers.ChatController.CreateChatSession)
	httpRouter.HandleFunc("PATCH /api/v1/chat-sessions/{chatSessionID}", handlers.ChatController.RenameChatSession)
	httpRouter.HandleFunc("DELETE /api/v1/chat-sessions/{chatSessionID}", handlers.ChatController.DeleteChatSession)
	httpRouter.HandleFunc("GET /api/v1/chat-sessions/{chatSessionID}/messages", handlers.ChatController.GetChatSessionMessages)

	//FILES
	httpRouter.HandleFunc("POST /api/v1/files/upload", handlers.FileController.UploadFile)
}

// announceBootstrapTokens prints the token pair once to out. The structured
// log only records that tokens were issued.
func announceBootstrapTokens(out io.Writer, logger *zap.Logger, userID string, td *models.TokenDetails) {
	fmt.Fprintf(out, "bootstrap tokens for %s\naccess_token=%s\nrefresh_token=%s\n", userID, td.AccessToken, td.RefreshToken)
	logger.Info("bootstrap tokens issued", zap.String("user_id", userID))
}

func purgeExpiredTokens(ctx context.Context, dbHandler *db.DBManager, logger *zap.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := dbHandler.DeleteExpiredTokens(ctx)
			if err != nil {
				logger.Warn("failed to purge expired tokens", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Debug("purged expired tokens", zap.Int64("count", purged))
			}
		}
	}
}
