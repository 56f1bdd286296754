package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elo-ledger/internal/auth"
	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/handler"
	"github.com/elo-ledger/internal/kafka"
	"github.com/elo-ledger/internal/memory"
	"github.com/elo-ledger/internal/postgres"
	"github.com/elo-ledger/internal/redis"
	"github.com/elo-ledger/internal/service"
	"github.com/elo-ledger/internal/websocket"
	"github.com/elo-ledger/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readiness := make(map[string]handler.ReadinessCheck)

	// Initialize record store
	var store service.Store
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory record store; records are lost on restart")
		store = memory.NewStore()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = postgresRepo
		readiness["postgres"] = postgresRepo.Ping
	}

	// Initialize Redis rating ladder
	var ladder service.Ladder
	var redisLadder *redis.Ladder
	if cfg.Ladder.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		var err error
		redisLadder, err = redis.NewLadder(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without ladder", "error", err)
		} else {
			defer redisLadder.Close()
			ladder = redisLadder
			readiness["redis"] = redisLadder.Ping
			logger.Info("connected to Redis")
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	ledger := service.NewLedger(store, ladder, &cfg.Ladder, logger)
	ledger.SetNotifier(wsHub)

	verifier := auth.NewVerifier(&cfg.Auth, nil)

	// Initialize sync worker
	var syncWorker *worker.SyncWorker
	if redisLadder != nil {
		syncWorker = worker.NewSyncWorker(redisLadder, store, &cfg.Sync, logger)

		// Rebuild the ladder from the store on startup (recovery)
		logger.Info("syncing ladder from record store")
		if err := syncWorker.SyncFromStore(ctx); err != nil {
			logger.Warn("failed to sync ladder on startup", "error", err)
		}

		if cfg.Sync.Enabled {
			if err := syncWorker.Start(ctx); err != nil {
				logger.Error("failed to start sync worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize Kafka consumer for game outcome ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, ledger, verifier, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(ledger, verifier, wsHub, logger)
	for name, check := range readiness {
		httpHandler.AddReadinessCheck(name, check)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sync worker
	if syncWorker != nil {
		if err := syncWorker.Stop(); err != nil {
			logger.Error("failed to stop sync worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
