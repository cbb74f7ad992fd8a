package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pnguyenfetchai/study-assistant/internal/actor"
	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/config"
	"github.com/pnguyenfetchai/study-assistant/internal/ingress"
	"github.com/pnguyenfetchai/study-assistant/internal/llm"
	"github.com/pnguyenfetchai/study-assistant/internal/rag"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
	"github.com/pnguyenfetchai/study-assistant/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting study assistant mesh...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Knowledge index: %s", cfg.IndexPath)
	log.Printf("Bus: %s", cfg.Bus)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Session slots describe in-flight exchanges from the previous run;
	// drop them so stale sessions cannot absorb new answers.
	ctx := context.Background()
	if err := actor.ResetSessions(ctx, db); err != nil {
		log.Fatalf("Failed to reset session state: %v", err)
	}

	// Initialize LLM client
	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.EmbedModel, cfg.LLMTimeout)
	collaborators := collab.New(llmClient)

	// Initialize knowledge index (reloaded if the file already exists)
	index, err := rag.NewIndex(cfg.IndexPath, llmClient)
	if err != nil {
		log.Fatalf("Failed to initialize knowledge index: %v", err)
	}
	defer index.Close()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize bus
	var transport bus.Bus
	switch cfg.Bus {
	case "redis":
		transport = bus.NewRedisBus(cfg.RedisAddr)
	default:
		transport = bus.NewMemoryBus()
	}
	defer transport.Close()

	// Register agents
	agents := []bus.Handler{
		actor.NewGateway(transport, db, collaborators),
		actor.NewKnowledge(transport, collaborators, index, actor.KnowledgeConfig{
			CanvasBaseURL: cfg.CanvasBaseURL,
			FilesDir:      cfg.CourseFilesDir,
			ChunkSize:     cfg.ChunkSize,
			ChunkOverlap:  cfg.ChunkOverlap,
			TopK:          cfg.RetrieveTopK,
		}),
		actor.NewProblem(transport, db, collaborators),
		actor.NewVerifier(transport, collaborators, cfg.MaxSolveAttempts),
		actor.NewToolDispatch(transport, db, collaborators, policyEngine),
		actor.NewVisualization(transport, collaborators),
	}
	for _, a := range agents {
		if err := transport.Register(a); err != nil {
			log.Fatalf("Failed to register agent %s: %v", a.Address(), err)
		}
	}

	// Initialize hub and HTTP boundary
	connectionHub := ingress.NewHub()
	go connectionHub.Run()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api := ingress.NewAPI(transport, db, connectionHub, cfg.SubmitTimeout)
	api.RegisterRoutes(e, ingress.NewWSServer(connectionHub))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	log.Printf("HTTP boundary started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down mesh...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	log.Println("Mesh stopped")
}
