package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/storage"
)

// env is what every subcommand needs: configuration, a logger and the run
// store.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Storage
}

// openEnv loads the configuration and opens the run store. Logs go to logOut
// so they do not mix with command output.
func openEnv(ctx context.Context, logOut io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.SetupWriter(cfg, logOut)

	store, err := storage.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("Failed to close storage", "error", err)
	}
}

// publisher broadcasts run events when runs are stored in Redis.
func (e *env) publisher() events.Publisher {
	if rs, ok := e.store.(*storage.RedisStorage); ok {
		return events.NewBroadcaster(rs.Client(), e.log)
	}
	return events.Nop{}
}
