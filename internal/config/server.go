package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Server holds server-side configuration loaded from the environment.
type Server struct {
	Port string

	// Backend selects the conversation backends: "mock" or "cloud".
	Backend string

	// SessionStore selects "memory" or "mongo".
	SessionStore string

	// SessionMaxIdle is how long a session may sit untouched before the
	// cleanup sweep expires it.
	SessionMaxIdle  time.Duration
	CleanupInterval time.Duration

	// SummarizeThreshold trims conversation history past this many messages.
	// Zero disables trimming.
	SummarizeThreshold int
}

// LoadServer reads configuration from .env (when present) and the process
// environment.
func LoadServer(logger *zap.Logger) Server {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	return Server{
		Port:               envString("PORT", "8080"),
		Backend:            envString("CONVERSATION_BACKEND", "mock"),
		SessionStore:       envString("SESSION_STORE", "memory"),
		SessionMaxIdle:     envDuration("SESSION_MAX_IDLE", 30*time.Minute),
		CleanupInterval:    envDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		SummarizeThreshold: envInt("SUMMARIZE_THRESHOLD", 0),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
