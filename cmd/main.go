package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/adapters/agent"
	"github.com/memory-postcard/voicecall/adapters/catalog"
	"github.com/memory-postcard/voicecall/adapters/mongo"
	"github.com/memory-postcard/voicecall/adapters/token"
	"github.com/memory-postcard/voicecall/adapters/transport"
	"github.com/memory-postcard/voicecall/config"
	"github.com/memory-postcard/voicecall/domain/repositories"
	"github.com/memory-postcard/voicecall/internal/api"
	"github.com/memory-postcard/voicecall/internal/auth"
	"github.com/memory-postcard/voicecall/internal/call"
	"github.com/memory-postcard/voicecall/internal/store"
	"github.com/memory-postcard/voicecall/usecase"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Transcript archive is best-effort; the engine runs without it.
	var transcripts repositories.TranscriptRepository
	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Warn("MongoDB unavailable, transcript archival disabled", zap.Error(err))
	} else {
		transcripts = mongo.NewTranscriptRepository(mongoClient.Database)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Close(ctx)
		}()
	}

	// Initialize adapters
	var rtc repositories.RealtimeTransport
	if cfg.GatewayWSURL != "" {
		rtc = transport.NewGateway(cfg.GatewayWSURL, logger)
	} else {
		logger.Warn("GATEWAY_WS_URL not set, using in-memory transport")
		rtc = transport.NewMock(logger)
	}
	tokens := token.NewClient(cfg.TokenServerURL, logger)
	agents := agent.NewClient(cfg.AgentServerURL, logger)
	backend := catalog.NewClient(cfg.BackendAPIURL, cfg.BackendAPIToken, logger)

	// Initialize the engine
	st := store.New(logger)
	orchestrator := call.NewOrchestrator(rtc, tokens, logger)
	controller := call.NewAgentController(agents, logger)
	svc := usecase.NewCallService(orchestrator, controller, backend, backend, transcripts, st, logger)
	go svc.Run()

	// Initialize API routes
	jwtAuth := auth.New(cfg.JWTSecret)
	api.InitRoutes(e, svc, st, jwtAuth, logger)

	// Start server
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice-call engine started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Hang up any active call; teardown legs run in parallel and are
	// idempotent.
	svc.EndCall()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
