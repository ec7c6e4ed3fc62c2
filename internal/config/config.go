package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort string

	// Generation backend. All three are required at startup.
	RagCorpus    string
	ModelID      string
	GoogleAPIKey string

	// DatabaseURL selects the Postgres store when set; otherwise conversations
	// are persisted to the bolt file at ConversationsDB.
	DatabaseURL     string
	ConversationsDB string

	StorageDir string
	PromptsDir string

	// AuthJWTSecret enables bearer-token auth on conversation routes when set.
	AuthJWTSecret string

	// Slack notification target for finished reports. Both must be set to
	// enable notifications.
	SlackBotToken  string
	SlackChannelID string

	CORSAllowedOrigins []string
	LogLevel           string
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
// The process refuses to start when any of the required generation variables
// are absent.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Could not load .env file. Using environment variables only.")
	}

	ragCorpus := getEnv("RAG_CORPUS", "")
	modelID := getEnv("MODEL_ID", "")
	apiKey := getEnv("GOOGLE_CLOUD_API_KEY", "")

	var missing []string
	if ragCorpus == "" {
		missing = append(missing, "RAG_CORPUS")
	}
	if modelID == "" {
		missing = append(missing, "MODEL_ID")
	}
	if apiKey == "" {
		missing = append(missing, "GOOGLE_CLOUD_API_KEY")
	}
	if len(missing) > 0 {
		log.Fatal().Msgf("Missing required environment variables: %s", strings.Join(missing, ", "))
	}

	storageDir := getEnv("STORAGE_DIR", "storage")

	cfg := &Config{
		HTTPPort:           getEnv("PORT", "8080"),
		RagCorpus:          ragCorpus,
		ModelID:            modelID,
		GoogleAPIKey:       apiKey,
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ConversationsDB:    getEnv("CONVERSATIONS_DB", filepath.Join(storageDir, "conversations.db")),
		StorageDir:         storageDir,
		PromptsDir:         getEnv("PROMPTS_DIR", "prompts"),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannelID:     getEnv("SLACK_CHANNEL_ID", ""),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("model", cfg.ModelID).
		Str("storage_dir", cfg.StorageDir).
		Bool("postgres", cfg.DatabaseURL != "").
		Bool("auth_enabled", cfg.AuthJWTSecret != "").
		Msg("Configuration loaded")

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
