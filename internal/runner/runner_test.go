package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/internal/storage"
	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/scenario"
	"github.com/wintersim/muonio/pkg/sim"
	"github.com/wintersim/muonio/pkg/sim/headless"
)

type fixture struct {
	world     *headless.World
	store     *storage.MockStorage
	publisher *events.MockPublisher
	runner    *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	f := &fixture{
		world:     headless.New(headless.DefaultMapSpec(), log),
		store:     storage.NewMockStorage(),
		publisher: &events.MockPublisher{},
	}
	t.Cleanup(func() { _ = f.world.Close() })
	f.runner = New(f.world, f.store, f.publisher, log, WithBackend(headless.BackendName))
	return f
}

func followConfig(egoX float64, autopilot bool) *scenario.Config {
	return &scenario.Config{
		Name:          "muonio_follow",
		Type:          scenario.FollowLeadingVehicleType,
		Town:          "Muonio",
		TriggerPoints: []geom.Transform{{Location: geom.Location{X: 100}}},
		EgoVehicles: []scenario.ActorConfig{{
			Model:     "vehicle.tesla.model3",
			RoleName:  "hero",
			Transform: geom.Transform{Location: geom.Location{X: egoX, Z: 0.3}},
			Autopilot: autopilot,
		}},
	}
}

func eventTypes(p *events.MockPublisher) []events.EventType {
	var types []events.EventType
	for _, e := range p.Events() {
		types = append(types, e.Type)
	}
	return types
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)

	rec, err := f.runner.Run(context.Background(), followConfig(100, true))
	require.NoError(t, err)
	assert.Equal(t, scenario.VerdictSuccess, rec.Verdict)
	assert.Equal(t, headless.BackendName, rec.Backend)
	assert.Greater(t, rec.Ticks, 0)
	assert.Less(t, rec.SimSeconds, scenario.DefaultTimeout.Seconds())
	require.Len(t, rec.Criteria, 1)
	assert.Equal(t, atomic.TestSuccess, rec.Criteria[0].Status)

	assert.Empty(t, f.world.Actors(), "runner must remove the scenario actors and the egos")

	stored, err := f.store.LoadRun(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, scenario.VerdictSuccess, stored.Verdict)

	assert.Equal(t, []events.EventType{events.EventTypeScenarioStarted, events.EventTypeScenarioCompleted}, eventTypes(f.publisher))
}

func TestRunTimeout(t *testing.T) {
	f := newFixture(t)
	cfg := followConfig(20, false)
	cfg.Timeout = 30

	rec, err := f.runner.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, scenario.VerdictTimeout, rec.Verdict)
	assert.InDelta(t, 30, rec.SimSeconds, 0.1)
	assert.Empty(t, f.world.Actors())
}

func TestRunCancelledAborts(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := f.runner.Run(ctx, followConfig(20, false))
	require.NoError(t, err)
	assert.Equal(t, scenario.VerdictAborted, rec.Verdict)
	assert.Empty(t, f.world.Actors(), "teardown must run on cancellation")

	stored, err := f.store.LoadRun(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "aborted runs are stored too")
}

func TestRunTownMismatch(t *testing.T) {
	f := newFixture(t)
	cfg := followConfig(20, false)
	cfg.Town = "Helsinki"

	rec, err := f.runner.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Helsinki")
	assert.Equal(t, scenario.VerdictFailure, rec.Verdict)
	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, []events.EventType{events.EventTypeScenarioFailed}, eventTypes(f.publisher))
}

func TestRunEgoSpawnFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	cfg := followConfig(20, false)
	// The second ego lands on the first one.
	cfg.EgoVehicles = append(cfg.EgoVehicles, cfg.EgoVehicles[0])

	_, err := f.runner.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrSpawnCollision))
	assert.Empty(t, f.world.Actors())
}

func TestRunWithoutStoreOrPublisher(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := headless.New(headless.DefaultMapSpec(), log)
	defer w.Close()

	cfg := followConfig(20, false)
	cfg.Timeout = 5
	rec, err := New(w, nil, nil, log).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, scenario.VerdictTimeout, rec.Verdict)
}

func TestRunWithRunID(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := headless.New(headless.DefaultMapSpec(), log)
	defer w.Close()
	store := storage.NewMockStorage()
	id := uuid.New()

	cfg := followConfig(20, false)
	cfg.Timeout = 1
	rec, err := New(w, store, nil, log, WithRunID(id)).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	stored, err := store.LoadRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestReport(t *testing.T) {
	rec := &scenario.Record{
		Scenario:   "muonio_follow",
		Type:       scenario.FollowLeadingVehicleType,
		Verdict:    scenario.VerdictFailure,
		Ticks:      400,
		SimSeconds: 20,
		StartedAt:  time.Now(),
		FinishedAt: time.Now().Add(time.Second),
		Criteria: []atomic.Result{
			{Name: "CollisionTest", Actor: 1, Status: atomic.TestFailure, Actual: 2},
		},
	}
	out := Report(rec)
	for _, want := range []string{"muonio_follow", "FAILURE", "CollisionTest", "Duration", "20.00s"} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}
}
