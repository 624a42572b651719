package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/internal/handlers"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/middleware"
	"github.com/wintersim/muonio/internal/queue"
	"github.com/wintersim/muonio/internal/storage"
)

// Redis may come up after the API in a fresh deployment.
const (
	startupAttempts = 30
	startupDelay    = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting WinterSim Muonio API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend)

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	store, err := storage.New(storageCtx, cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	if err := storage.WaitForConnection(storageCtx, store, startupAttempts, startupDelay, log); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	eventsClient := eventBus(storageCtx, cfg, store, log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, eventsClient, log)
	mux.Handle("/health", healthHandler)

	runsHandler := handlers.NewRunsHandler(store, log)
	if eventsClient != nil {
		// Runs are queued on the event bus connection
		runsHandler.WithQueue(queue.NewRunQueue(queue.NewClientFrom(eventsClient, log)))
		log.Info("Run queue enabled")
	}
	mux.Handle("/v1/runs", runsHandler)
	mux.Handle("/v1/runs/", runsHandler)

	if eventsClient != nil {
		eventsHandler := handlers.NewEventsHandler(eventsClient, log)
		mux.Handle("/v1/events/", eventsHandler)
	}

	// Cancelled on shutdown so open SSE streams end
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE endpoints stream until the client leaves
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if eventsClient != nil {
		if err := eventsClient.Close(); err != nil {
			log.Error("Error closing event bus connection", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

// eventBus returns the Redis client the SSE endpoints subscribe with, or nil
// when Redis is unreachable. With Redis storage it reuses the storage
// client's options.
func eventBus(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("Invalid REDIS_URL, event streams disabled", "error", err)
		return nil
	}
	if rs, ok := store.(*storage.RedisStorage); ok {
		opts = rs.Client().Options()
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, event streams disabled", "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("Event streams enabled")
	return client
}
