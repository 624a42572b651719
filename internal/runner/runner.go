// Package runner drives a scenario against a simulator: it spawns the ego
// vehicles, ticks world and tree in lockstep, tears the scenario down on
// every exit path and stores the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/logger"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
)

// Runner runs scenarios on one world. It owns the world for the duration of
// a run and is not safe for concurrent use.
type Runner struct {
	world     sim.World
	store     storage.Storage
	publisher events.Publisher
	log       *slog.Logger
	backend   string
	realtime  bool
	runID     uuid.UUID
}

// Option configures a Runner.
type Option func(*Runner)

// WithRealtime paces ticks to the wall clock instead of running as fast as
// possible.
func WithRealtime(enabled bool) Option {
	return func(r *Runner) { r.realtime = enabled }
}

// WithBackend names the simulator backend in run records.
func WithBackend(name string) Option {
	return func(r *Runner) { r.backend = name }
}

// WithRunID makes the next run use id instead of a fresh one, so a caller
// can hand out the ID before the run starts.
func WithRunID(id uuid.UUID) Option {
	return func(r *Runner) { r.runID = id }
}

// New creates a runner. store and publisher may be nil.
func New(world sim.World, store storage.Storage, publisher events.Publisher, log *slog.Logger, opts ...Option) *Runner {
	if publisher == nil {
		publisher = events.Nop{}
	}
	r := &Runner{
		world:     world,
		store:     store,
		publisher: publisher,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cfg to completion and returns its record. Cancelling ctx stops
// the run with an ABORTED verdict. Setup failures (map mismatch, spawn
// failures) and world tick failures are returned as errors; the record is
// still stored when a store is configured.
func (r *Runner) Run(ctx context.Context, cfg *scenario.Config) (*scenario.Record, error) {
	rec := scenario.NewRecord(cfg)
	if r.runID != uuid.Nil {
		rec.ID = r.runID
	}
	rec.Backend = r.backend
	log := logger.WithRunID(r.log, rec.ID).With("scenario", cfg.Name)

	if err := r.checkTown(cfg); err != nil {
		return rec, r.fail(ctx, log, rec, err)
	}

	egos, err := r.spawnEgos(cfg, log)
	if err != nil {
		return rec, r.fail(ctx, log, rec, err)
	}
	defer r.destroyEgos(egos, log)

	var simTime time.Duration
	env := &atomic.Env{
		World:  r.world,
		Logger: log,
		Clock:  func() time.Duration { return simTime },
	}

	sc, err := scenario.Build(env, egos, cfg)
	if err != nil {
		return rec, r.fail(ctx, log, rec, fmt.Errorf("failed to build scenario: %w", err))
	}
	defer func() {
		if err := sc.Teardown(); err != nil {
			log.Error("Scenario teardown failed", "error", err)
		}
	}()
	rec.Params = sc.Params()

	if err := r.publisher.PublishScenarioStarted(ctx, rec.ID, cfg.Name, cfg.Type); err != nil {
		log.Warn("Failed to publish start event", "error", err)
	}
	log.Info("Scenario started", "type", cfg.Type, "timeout", cfg.TimeoutDuration(), "realtime", r.realtime)

	runErr := r.loop(ctx, sc, &simTime)

	if err := sc.Teardown(); err != nil {
		log.Error("Scenario teardown failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	rec.Verdict = sc.Verdict()
	rec.Criteria = sc.Results()
	rec.Ticks = sc.Tree().Ticks()
	rec.SimSeconds = simTime.Seconds()
	rec.FinishedAt = time.Now().UTC()
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	log.Info("Scenario finished",
		"verdict", rec.Verdict,
		"ticks", rec.Ticks,
		"sim_seconds", rec.SimSeconds,
	)
	r.save(ctx, log, rec)
	if err := r.publisher.PublishScenarioCompleted(context.WithoutCancel(ctx), rec.ID, string(rec.Verdict), rec.Ticks, rec.SimSeconds); err != nil {
		log.Warn("Failed to publish completion event", "error", err)
	}
	return rec, runErr
}

// loop ticks the world, advances the scenario clock by the world's delta and
// ticks the tree, until the tree finishes or ctx is cancelled.
func (r *Runner) loop(ctx context.Context, sc *scenario.Scenario, simTime *time.Duration) error {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for !sc.Done() {
		if ctx.Err() != nil {
			r.log.Info("Scenario cancelled", "scenario", sc.Name())
			return nil
		}

		snap, err := r.world.Tick()
		if err != nil {
			return fmt.Errorf("world tick failed: %w", err)
		}
		*simTime += time.Duration(snap.Delta * float64(time.Second))
		sc.Tick()

		if !r.realtime || sc.Done() {
			continue
		}
		if ticker == nil {
			ticker = time.NewTicker(time.Duration(snap.Delta * float64(time.Second)))
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	return nil
}

func (r *Runner) checkTown(cfg *scenario.Config) error {
	if cfg.Town == "" {
		return nil
	}
	if name := r.world.Map().Name(); name != cfg.Town {
		return fmt.Errorf("scenario expects town %q but the simulator runs %q", cfg.Town, name)
	}
	return nil
}

// spawnEgos spawns the configured ego vehicles. On failure the ones already
// spawned are removed again.
func (r *Runner) spawnEgos(cfg *scenario.Config, log *slog.Logger) ([]sim.ActorID, error) {
	egos := make([]sim.ActorID, 0, len(cfg.EgoVehicles))
	for i, ec := range cfg.EgoVehicles {
		role := ec.RoleName
		if role == "" {
			role = "hero"
		}
		id, err := r.world.Spawn(sim.SpawnRequest{Blueprint: ec.Model, Transform: ec.Transform, RoleName: role})
		if err != nil {
			r.destroyEgos(egos, log)
			return nil, fmt.Errorf("failed to spawn ego vehicle %d (%s): %w", i, ec.Model, err)
		}
		egos = append(egos, id)

		if ec.Autopilot {
			if err := r.world.SetAutopilot(id, true); err != nil {
				r.destroyEgos(egos, log)
				return nil, fmt.Errorf("failed to enable autopilot on ego vehicle %d: %w", i, err)
			}
		}
		log.Info("Ego vehicle spawned", "actor_id", id, "model", ec.Model, "autopilot", ec.Autopilot)
	}
	return egos, nil
}

func (r *Runner) destroyEgos(egos []sim.ActorID, log *slog.Logger) {
	for _, id := range egos {
		if err := r.world.Destroy(id); err != nil && !errors.Is(err, sim.ErrActorNotFound) {
			log.Error("Failed to remove ego vehicle", "actor_id", id, "error", err)
		}
	}
}

// fail finishes a run that never started.
func (r *Runner) fail(ctx context.Context, log *slog.Logger, rec *scenario.Record, err error) error {
	log.Error("Scenario setup failed", "error", err)
	rec.Verdict = scenario.VerdictFailure
	rec.Error = err.Error()
	rec.FinishedAt = time.Now().UTC()
	r.save(ctx, log, rec)
	if pubErr := r.publisher.PublishScenarioFailed(ctx, rec.ID, err.Error()); pubErr != nil {
		log.Warn("Failed to publish failure event", "error", pubErr)
	}
	return err
}

// save stores rec, also after ctx has been cancelled.
func (r *Runner) save(ctx context.Context, log *slog.Logger, rec *scenario.Record) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("Failed to store run record", "error", err)
	}
}
