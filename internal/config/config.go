// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process configuration sourced from the environment. Every
// field has a development default so the server boots with no env at all.
type Config struct {
	// Addr is the listen address for the HTTP/WebSocket server.
	Addr string

	// DatabaseURL is the postgres connection string for the snapshot and
	// content collaborator. Empty disables persistence.
	DatabaseURL string

	// RedisAddr is the address of the redis instance receiving the action
	// journal. Empty disables journaling.
	RedisAddr     string
	RedisPassword string

	// JWTSecret is the HMAC secret shared with the account service.
	JWTSecret string

	// TokenTTL bounds the lifetime of tokens minted locally (dev tooling).
	TokenTTL time.Duration

	// TurnTimerSec is the per-turn countdown in seconds. Zero disables
	// server-forced turn advancement.
	TurnTimerSec int
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		Addr:          getEnv("WHOISIT_ADDR", ":8080"),
		DatabaseURL:   getEnv("WHOISIT_DATABASE_URL", ""),
		RedisAddr:     getEnv("WHOISIT_REDIS_ADDR", ""),
		RedisPassword: getEnv("WHOISIT_REDIS_PASSWORD", ""),
		JWTSecret:     getEnv("WHOISIT_JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:      time.Duration(getEnvInt("WHOISIT_TOKEN_TTL_HOURS", 72)) * time.Hour,
		TurnTimerSec:  getEnvInt("WHOISIT_TURN_TIMER_SEC", 30),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
