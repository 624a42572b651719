package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/pkg/scenario"
)

// Storage keeps scenario run records.
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	SaveRun(ctx context.Context, rec *scenario.Record) error
	// LoadRun returns nil, nil when no run has the id.
	LoadRun(ctx context.Context, id uuid.UUID) (*scenario.Record, error)
	// ListRuns returns the newest runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]*scenario.Record, error)
}

// New opens the backend named by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		return NewRedisStorage(ctx, cfg.RedisURL, logger)
	case config.StorageSQLite:
		return NewSQLiteStorage(ctx, cfg.SQLitePath, logger)
	case config.StorageMemory:
		return NewMockStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// WaitForConnection pings s until it answers, up to attempts times with delay
// between tries. Services call it at startup, where the backing Redis may
// come up after the process.
func WaitForConnection(ctx context.Context, s Storage, attempts int, delay time.Duration, logger *slog.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.Ping(ctx); err == nil {
			logger.Info("Storage connection established", "attempts", i+1)
			return nil
		}
		logger.Debug("Storage not ready yet", "error", err, "attempt", i+1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for storage: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("storage did not become available after %d attempts: %w", attempts, err)
}
