package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       slog.Level
	RedisURL       string
	StorageBackend string
	SQLitePath     string
	SimBackend     string
	SimHost        string
	SimPort        int
	SimTimeout     time.Duration
	MapFile        string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageSQLite)),
		SQLitePath:     getEnv("SQLITE_PATH", "wintersim-runs.db"),
		SimBackend:     getEnv("SIM_BACKEND", "headless"),
		SimHost:        getEnv("SIM_HOST", "127.0.0.1"),
		MapFile:        getEnv("SIM_MAP_FILE", ""),
	}

	port, err := strconv.Atoi(getEnv("SIM_PORT", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIM_PORT: %w", err)
	}
	cfg.SimPort = port

	timeout, err := time.ParseDuration(getEnv("SIM_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIM_TIMEOUT: %w", err)
	}
	cfg.SimTimeout = timeout

	switch cfg.StorageBackend {
	case StorageRedis, StorageSQLite, StorageMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q (supported: %s, %s, %s)",
			cfg.StorageBackend, StorageRedis, StorageSQLite, StorageMemory)
	}
	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
