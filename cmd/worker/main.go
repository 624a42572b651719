package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/queue"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/internal/worker"
	"github.com/wintersim/muonio/pkg/sim"
	_ "github.com/wintersim/muonio/pkg/sim/headless"
)

// shutdownGrace bounds how long a stopping worker may spend storing the
// aborted run it was driving.
const shutdownGrace = 30 * time.Second

// Redis may come up after the worker in a fresh deployment.
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

	log.Info("Starting WinterSim Muonio Worker",
		"environment", cfg.Environment,
		"storage_backend", cfg.StorageBackend,
		"sim_backend", cfg.SimBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Initialize storage service
	store, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage connection", "error", err)
		}
	}()
	if err := storage.WaitForConnection(ctx, store, startupAttempts, startupDelay, log); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	// Initialize queue service
	queueClient, err := queue.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()

	runQueue := queue.NewRunQueue(queueClient)
	log.Info("Queue service initialized successfully")

	endpoint := sim.Endpoint{
		Backend: cfg.SimBackend,
		Host:    cfg.SimHost,
		Port:    cfg.SimPort,
		Timeout: cfg.SimTimeout,
	}
	if cfg.MapFile != "" {
		endpoint.Options = map[string]string{"map": cfg.MapFile}
	}

	// The queue client's connection doubles as the lock and event client
	w := worker.New(runQueue, store, queueClient.Client(), endpoint, log, os.Getenv("WORKER_ID"))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for requests...")

	// Wait for shutdown signal
	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}
