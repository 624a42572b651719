package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wintersim/muonio/internal/queue"
	queuePkg "github.com/wintersim/muonio/pkg/queue"
	"github.com/wintersim/muonio/pkg/scenario"
)

func main() {
	path := "scenarios/follow_leading_vehicle.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	cfg, err := scenario.LoadConfig(path)
	if err != nil {
		log.Fatal("Failed to load scenario:", err)
	}
	// The worker resolves map files on its own filesystem
	if cfg.MapFile != "" && !filepath.IsAbs(cfg.MapFile) {
		if cfg.MapFile, err = filepath.Abs(filepath.Join(filepath.Dir(path), cfg.MapFile)); err != nil {
			log.Fatal("Failed to resolve map file:", err)
		}
	}

	ctx := context.Background()
	client, err := queue.NewClient(ctx, redisURL, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer func() { _ = client.Close() }()

	fmt.Println("Connected to Redis successfully!")

	runQueue := queue.NewRunQueue(client)
	req := queuePkg.NewRunRequest(*cfg, false)
	if err := runQueue.Enqueue(ctx, req); err != nil {
		log.Fatal("Failed to enqueue request:", err)
	}

	fmt.Printf("Enqueued run request %s for %s\n", req.RequestID, cfg.Name)
	fmt.Printf("   run_id: %s\n", req.RunID)

	depth, err := runQueue.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\nQueue depth: %d requests\n", depth)
	fmt.Println("\nNow start the worker to see it process these requests!")
	fmt.Println("   Run: go run ./cmd/worker")
	fmt.Printf("   Then: go run ./cmd/scenario show %s\n", req.RunID)
}
