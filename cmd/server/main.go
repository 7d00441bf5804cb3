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

	"github.com/cschleiden/go-workflows/backend"
	"github.com/cschleiden/go-workflows/backend/postgres"
	"github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"onboardflow/backend/internal/api"
	"onboardflow/backend/internal/config"
	"onboardflow/backend/internal/criteria"
	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/mcp"
	"onboardflow/backend/internal/onboarding"
	"onboardflow/backend/internal/repository"
	"onboardflow/backend/internal/services"
	"onboardflow/backend/internal/stream"
	selfsigned "onboardflow/backend/internal/tls"
	"onboardflow/backend/internal/ws"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	// Initialize logging
	logger := logging.NewLogger(cfg.Log.Level)
	logger.Info("Starting Onboarding Flow Service")

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Initialize repository layer
	store := repository.NewPostgresRecordStore(dbPool)
	if err := store.Init(ctx); err != nil {
		logger.Error("Failed to initialize record store", "error", err)
		log.Fatalf("Record store initialization failed: %v", err)
	}

	// Load the workflow definition
	definition, err := onboarding.LoadDefinition(cfg.Workflow.DefinitionFile)
	if err != nil {
		logger.Error("Failed to load workflow definition", "error", err)
		log.Fatalf("Workflow definition loading failed: %v", err)
	}
	logger.Info("Workflow definition loaded", "workflow", definition.Name, "steps", definition.TotalSteps())

	// Initialize service layer
	memoryService := services.NewHTTPMemoryService(cfg.Memory.URL, logger)
	agentClient := services.NewHTTPAgentClient(cfg.Agents.URL)
	conversations := services.NewConversationService(store)

	// Live connection hub
	hub := ws.NewHub(logger)

	// Durable engine backend, client, and worker
	engineBackend, err := initEngineBackend(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize workflow backend", "error", err)
		log.Fatalf("Workflow backend initialization failed: %v", err)
	}
	engineClient := client.New(engineBackend)

	workflowService := onboarding.NewService(engineClient, store, definition, cfg.Streaming.CompletionTimeout, logger)

	// Stream coordinator: executor and orchestrator live outside the engine,
	// the notifier signals results back in.
	executor := stream.NewExecutor(agentClient, logger)
	notifier := stream.NewNotifier(hub, workflowService, logger)
	orchestrator := stream.NewOrchestrator(ctx, executor, notifier, logger)

	// Criteria registry
	registry := criteriaRegistry(memoryService, store, logger)

	activities := &onboarding.Activities{
		Store:         store,
		Conversations: conversations,
		Memory:        memoryService,
		Agents:        agentClient,
		Streams:       orchestrator,
		Sender:        hub,
		Criteria:      registry,
		Logger:        logger,
	}

	w := worker.New(engineBackend, nil)
	if err := w.RegisterWorkflow(onboarding.Run); err != nil {
		log.Fatalf("Workflow registration failed: %v", err)
	}
	if err := w.RegisterActivity(activities); err != nil {
		log.Fatalf("Activity registration failed: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		log.Fatalf("Worker start failed: %v", err)
	}
	logger.Info("Workflow worker started", "backend", cfg.Engine.Backend)

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Mount REST API and websocket handlers
	apiServer := api.NewServer(workflowService, orchestrator, hub, logger)
	apiServer.Register(e)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(workflowService, memoryService)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if err := selfsigned.EnsureServerCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
				logger.Error("failed to provision dev certificate", "error", err)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		// Stops the worker and any in-flight streams.
		cancel()
		if err := w.WaitForCompletion(); err != nil {
			logger.Error("Worker shutdown error", "error", err)
		}

		logger.Info("Server stopped gracefully")
	}
}

func criteriaRegistry(memory services.MemorySearcher, store repository.RecordStore, logger *logging.Logger) *criteria.Registry {
	r := criteria.NewRegistry(logger)
	criteria.RegisterDefaults(r, memory, store, logger)
	return r
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initEngineBackend(cfg *config.Config, logger *logging.Logger) (backend.Backend, error) {
	switch cfg.Engine.Backend {
	case "postgres":
		return postgres.NewPostgresBackend(
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			postgres.WithApplyMigrations(true),
			postgres.WithSSLMode(cfg.DB.SSLMode),
			postgres.WithBackendOptions(backend.WithLogger(logger.Logger)),
		), nil
	case "sqlite":
		return sqlite.NewSqliteBackend(cfg.Engine.SqlitePath,
			sqlite.WithBackendOptions(backend.WithLogger(logger.Logger))), nil
	case "memory":
		return sqlite.NewInMemoryBackend(
			sqlite.WithBackendOptions(backend.WithLogger(logger.Logger))), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Engine.Backend)
	}
}
