package main

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/nimbusapi/nimbus-sdk-go/internal/api"
	"github.com/nimbusapi/nimbus-sdk-go/internal/config"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage/postgres"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage/sqlite"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cred, err := core.NewKeyCredential(cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		log.Fatalf("Failed to load access key credential: %v", err)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, logger, cfg.JobTransitionLatency, cfg.MessageLockDuration)

	// Setup routes
	router := api.SetupRoutes(handler, cred)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server",
		zap.String("addr", addr),
		zap.String("storage_type", cfg.StorageType))

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
