package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sastrawinata/wicara/adapters/memory"
	mongoadapter "github.com/sastrawinata/wicara/adapters/mongo"
	"github.com/sastrawinata/wicara/adapters/response"
	"github.com/sastrawinata/wicara/adapters/transcription"
	"github.com/sastrawinata/wicara/domain/repositories"
	"github.com/sastrawinata/wicara/internal/api"
	"github.com/sastrawinata/wicara/internal/config"
	"github.com/sastrawinata/wicara/internal/websocket"
	"github.com/sastrawinata/wicara/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.LoadServer(logger)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Session store
	var sessionRepo repositories.SessionRepository
	switch cfg.SessionStore {
	case "mongo":
		client, err := mongoadapter.Connect(context.Background(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}()
		sessionRepo = mongoadapter.NewSessionRepository(client.Database, logger)
	default:
		sessionRepo = memory.NewSessionRepository()
	}

	// Conversation backends
	var transcriber repositories.TranscriptionService
	var responder repositories.ResponseService
	switch cfg.Backend {
	case "cloud":
		transcriber = transcription.NewGoogle(logger)
		gemini, err := response.NewGemini(logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini", zap.Error(err))
		}
		responder = gemini
	default:
		transcriber = transcription.NewMock("")
		responder = response.NewMock("")
		logger.Warn("Using mock conversation backends")
	}

	conversations := usecase.NewConversationService(
		transcriber, responder, sessionRepo, cfg.SummarizeThreshold, logger)

	// Initialize WebSocket hub with the conversation service
	hub := websocket.NewHub(conversations, sessionRepo, logger)
	go hub.Run()

	// Background expiry of idle sessions
	cleanup := websocket.NewSessionCleanupService(sessionRepo, cfg.SessionMaxIdle, cfg.CleanupInterval, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Initialize API routes
	api.InitRoutes(e, hub, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Backend),
		zap.String("sessionStore", cfg.SessionStore))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
