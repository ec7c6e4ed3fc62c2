package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"radreport-backend/internal/api"
	"radreport-backend/internal/config"
	"radreport-backend/internal/gemini"
	"radreport-backend/internal/handlers"
	"radreport-backend/internal/notify"
	"radreport-backend/internal/prompts"
	"radreport-backend/internal/report"
	"radreport-backend/internal/services"
	"radreport-backend/internal/store"
	boltstore "radreport-backend/internal/store/bolt"
	"radreport-backend/internal/store/postgres"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting RadReport Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, falling back to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// 2. Initialize Conversation Store
	// Postgres when DATABASE_URL is set, otherwise an embedded bolt database.
	var (
		conversations store.ConversationStore
		closeStore    func()
	)
	if cfg.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second) // Timeout for initial connection
		defer dbCancel()

		dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Unable to create database connection pool")
		}
		if err := dbpool.Ping(dbCtx); err != nil {
			log.Fatal().Err(err).Msg("Unable to ping database")
		}

		pgStore := postgres.NewPostgresStore(dbpool)
		if err := pgStore.EnsureSchema(dbCtx); err != nil {
			log.Fatal().Err(err).Msg("Unable to ensure database schema")
		}

		conversations = pgStore
		closeStore = dbpool.Close
		log.Info().Msg("Postgres conversation store initialized.")
	} else {
		boltStore, err := boltstore.Open(cfg.ConversationsDB)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ConversationsDB).Msg("Unable to open conversations database")
		}

		conversations = boltStore
		closeStore = func() {
			if err := boltStore.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing conversations database")
			}
		}
		log.Info().Str("path", cfg.ConversationsDB).Msg("Bolt conversation store initialized.")
	}
	defer closeStore()

	// 3. Initialize Generation Client
	genClient, err := gemini.NewClient(context.Background(), gemini.Config{
		APIKey:    cfg.GoogleAPIKey,
		ModelID:   cfg.ModelID,
		RagCorpus: cfg.RagCorpus,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generation client")
	}
	log.Info().Str("model", cfg.ModelID).Msg("Generation client initialized.")

	// 4. Initialize Dependencies (Services, Handlers)
	assembler := prompts.NewAssembler(cfg.PromptsDir, cfg.StorageDir)
	reportWriter := report.NewWriter(cfg.StorageDir)

	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID)
	if notifier == nil {
		log.Info().Msg("Slack notifications disabled.")
	}

	conversationService := services.NewConversationService(conversations, genClient, assembler, reportWriter, notifier)
	healthService := services.NewHealthService(cfg, gemini.ValidateAPIKey)

	conversationHandler := handlers.NewConversationHandlers(conversationService)
	healthHandler := handlers.NewHealthHandlers(healthService)

	// 5. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		ConversationHandler: conversationHandler,
		HealthHandler:       healthHandler,
		Config:              cfg,
	})
	log.Info().Msg("HTTP router configured.")

	// 6. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Generation requests can run for a while. The write timeout must
		// outlast the 60s request timeout applied in the router.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to listen for OS signals for graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Run server in a goroutine so it doesn't block
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.HTTPPort).Msg("Could not listen")
		}
		log.Info().Msg("Server listener routine stopped.")
	}()

	// Wait for interrupt signal
	<-stopChan
	log.Info().Msg("Shutdown signal received, initiating graceful shutdown...")

	// Create a deadline context for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server graceful shutdown failed")
	}

	log.Info().Msg("Server shutdown complete.")
}
