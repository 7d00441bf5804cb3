package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"onboardflow/backend/internal/config"
	"onboardflow/backend/internal/logging"
	"onboardflow/backend/internal/onboarding"
	"onboardflow/backend/internal/repository"
)

// Seeds the record store schema, system collections, and a demo user with a
// few inbox items so the widget criteria have something to count.
func main() {
	ctx := context.Background()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.NewLogger(cfg.Log.Level)

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresRecordStore(pool)

	// 1. Schema and system collections
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	logger.Info("Record store initialized")

	// 2. Validate the workflow definition so a broken config fails here,
	// not at the first user message
	definition, err := onboarding.LoadDefinition(cfg.Workflow.DefinitionFile)
	if err != nil {
		log.Fatalf("Workflow definition invalid: %v", err)
	}
	logger.Info("Workflow definition valid", "workflow", definition.Name, "steps", definition.TotalSteps())

	// 3. Demo user with inbox items
	const demoUser = "demo-user"

	existing, err := store.ListRecords(ctx, repository.CollectionInboxItems, repository.ListOptions{
		Filter: map[string]any{"user_id": demoUser},
	})
	if err != nil {
		log.Fatalf("Failed to list inbox items: %v", err)
	}
	if existing.Total > 0 {
		logger.Info("Demo user already seeded", "inbox_items", existing.Total)
		return
	}

	items := []string{
		"Plan the kitchen renovation",
		"Book dentist appointment",
		"Draft the quarterly report outline",
	}
	for _, content := range items {
		if _, err := store.CreateRecord(ctx, repository.CollectionInboxItems, map[string]any{
			"user_id": demoUser,
			"content": content,
			"status":  "open",
		}); err != nil {
			log.Fatalf("Failed to create inbox item: %v", err)
		}
	}

	logger.Info("Seed complete", "user_id", demoUser, "inbox_items", len(items))
}
