package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/queue"
	"github.com/wintersim/muonio/internal/runner"
	"github.com/wintersim/muonio/internal/storage"
	queuePkg "github.com/wintersim/muonio/pkg/queue"
	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
	"github.com/wintersim/muonio/pkg/sim/headless"
)

const (
	workerTimeout = 5 * time.Second
	// lockRetryDelay is how long a worker backs off after finding the
	// simulator busy.
	lockRetryDelay = 1 * time.Second
	// lockMargin is added to a run's timeout to get the simulator lock TTL.
	lockMargin = 1 * time.Minute
)

// Worker runs queued scenario requests against one simulator endpoint.
type Worker struct {
	id          string
	queue       *queue.RunQueue
	store       storage.Storage
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	endpoint    sim.Endpoint
	pollTimeout time.Duration
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(runQueue *queue.RunQueue, store storage.Storage, redisClient *redis.Client, endpoint sim.Endpoint, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       runQueue,
		store:       store,
		broadcaster: events.NewBroadcaster(redisClient, log),
		redisClient: redisClient,
		endpoint:    endpoint,
		pollTimeout: workerTimeout,
		log:         log.With("worker_id", workerID),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing requests from the queue. It returns once Stop has
// been called and the current run has finished.
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "backend", w.endpoint.Backend)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				if w.ctx.Err() != nil {
					continue
				}
				w.log.Error("Error processing request", "error", err)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker. A run in progress is aborted and
// stored with an ABORTED verdict.
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, w.pollTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}

	if req == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	w.log.Info("Received request from queue",
		"request_id", req.RequestID,
		"type", req.Type,
		"run_id", req.RunID.String(),
	)

	locked, err := w.acquireSimLock(req.Config.TimeoutDuration() + lockMargin)
	if err != nil {
		if requeueErr := w.queue.Requeue(context.Background(), req); requeueErr != nil {
			w.log.Error("Failed to requeue request", "error", requeueErr, "request_id", req.RequestID)
		}
		return fmt.Errorf("failed to acquire simulator lock: %w", err)
	}
	if !locked {
		// Another worker is driving this simulator
		w.log.Info("Simulator busy, re-queueing request", "request_id", req.RequestID)
		if err := w.queue.Requeue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		select {
		case <-w.ctx.Done():
		case <-time.After(lockRetryDelay):
		}
		return nil
	}

	// Process the request, blocking the worker until done
	defer w.releaseSimLock()
	return w.processRequest(req)
}

// exclusive reports whether runs on the endpoint need the simulator lock. A
// headless world lives inside each worker, so only shared simulators do.
func (w *Worker) exclusive() bool {
	return w.endpoint.Backend != headless.BackendName
}

func (w *Worker) lockKey() string {
	return fmt.Sprintf("sim-lock:%s:%s:%d", w.endpoint.Backend, w.endpoint.Host, w.endpoint.Port)
}

// acquireSimLock attempts to take the simulator for ttl.
// Returns true if lock was acquired, false if already locked
func (w *Worker) acquireSimLock(ttl time.Duration) (bool, error) {
	if !w.exclusive() {
		return true, nil
	}

	result, err := w.redisClient.SetNX(w.ctx, w.lockKey(), w.id, ttl).Result()
	if err != nil {
		return false, err
	}

	return result, nil
}

// releaseSimLock releases the simulator lock
func (w *Worker) releaseSimLock() {
	if !w.exclusive() {
		return
	}

	// Only delete if we own the lock
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// The worker context may already be cancelled on shutdown
	if err := script.Run(context.Background(), w.redisClient, []string{w.lockKey()}, w.id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		w.log.Error("Failed to release simulator lock", "error", err)
	}
}

// processRequest runs a single request to completion
func (w *Worker) processRequest(req *queuePkg.Request) error {
	if req.Type != queuePkg.RequestTypeRun {
		return fmt.Errorf("unknown request type: %s", req.Type)
	}

	log := logger.WithRunID(w.log, req.RunID).With("request_id", req.RequestID)
	log.Info("Processing request",
		"scenario", req.Config.Name,
		"queued_for_ms", time.Since(req.EnqueuedAt).Milliseconds(),
	)

	start := time.Now()
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("invalid scenario config: %w", err)
		w.failRequest(req, w.endpoint.Backend, log, err)
		return err
	}

	// A map configured on the worker wins over the request's
	ep := w.endpoint
	if cfg.MapFile != "" && ep.Options["map"] == "" {
		ep.Options = map[string]string{"map": cfg.MapFile}
	}
	world, err := sim.Connect(w.ctx, ep, log)
	if err != nil {
		err = fmt.Errorf("failed to connect to simulator: %w", err)
		w.failRequest(req, ep.Backend, log, err)
		return err
	}
	defer func() {
		if err := world.Close(); err != nil {
			log.Warn("Failed to close simulator connection", "error", err)
		}
	}()

	r := runner.New(world, w.store, w.broadcaster, log,
		runner.WithRealtime(req.Realtime),
		runner.WithBackend(ep.Backend),
		runner.WithRunID(req.RunID))
	rec, err := r.Run(w.ctx, &cfg)
	if err != nil {
		return fmt.Errorf("failed to run scenario %s: %w", cfg.Name, err)
	}

	log.Info("Run request processed",
		"verdict", rec.Verdict,
		"ticks", rec.Ticks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// failRequest stores a FAILURE record for a request that failed before the
// runner took over, so its run ID still resolves through the API.
func (w *Worker) failRequest(req *queuePkg.Request, backend string, log *slog.Logger, err error) {
	rec := scenario.NewRecord(&req.Config)
	rec.ID = req.RunID
	rec.Backend = backend
	rec.Verdict = scenario.VerdictFailure
	rec.Error = err.Error()
	rec.FinishedAt = rec.StartedAt

	// The worker context may already be cancelled on shutdown
	ctx := context.WithoutCancel(w.ctx)
	if saveErr := w.store.SaveRun(ctx, rec); saveErr != nil {
		log.Error("Failed to store run record", "error", saveErr)
	}
	if pubErr := w.broadcaster.PublishScenarioFailed(ctx, req.RunID, err.Error()); pubErr != nil {
		log.Error("Failed to publish failure event", "error", pubErr)
	}
}
