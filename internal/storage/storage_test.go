package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/wintersim/muonio/internal/config"
	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/scenario"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newRecord(name string, verdict scenario.Verdict, started time.Time) *scenario.Record {
	rec := scenario.NewRecord(&scenario.Config{Name: name, Type: scenario.FollowLeadingVehicleType, Town: "Muonio"})
	rec.Verdict = verdict
	rec.StartedAt = started
	rec.FinishedAt = started.Add(42 * time.Second)
	rec.Ticks = 840
	rec.SimSeconds = 42
	rec.Criteria = []atomic.Result{{Name: "CollisionTest", Actor: 1, Status: atomic.TestSuccess}}
	return rec
}

func setupRedis(t *testing.T) *RedisStorage {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedisStorage(context.Background(), "redis://"+mr.Addr(), testLogger())
	if err != nil {
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setupSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "runs.db"), testLogger())
	if err != nil {
		t.Fatalf("Failed to open sqlite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]Storage {
	return map[string]Storage{
		"redis":  setupRedis(t),
		"sqlite": setupSQLite(t),
		"mock":   NewMockStorage(),
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Ping(ctx); err != nil {
				t.Fatalf("Ping failed: %v", err)
			}

			rec := newRecord("muonio-follow", scenario.VerdictSuccess, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
			if err := s.SaveRun(ctx, rec); err != nil {
				t.Fatalf("Failed to save run: %v", err)
			}

			loaded, err := s.LoadRun(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Failed to load run: %v", err)
			}
			if loaded == nil {
				t.Fatal("Expected a stored record")
			}
			if loaded.ID != rec.ID {
				t.Errorf("Expected ID %s, got %s", rec.ID, loaded.ID)
			}
			if loaded.Verdict != scenario.VerdictSuccess {
				t.Errorf("Expected verdict %s, got %s", scenario.VerdictSuccess, loaded.Verdict)
			}
			if loaded.Ticks != 840 {
				t.Errorf("Expected 840 ticks, got %d", loaded.Ticks)
			}
			if loaded.Duration() != 42*time.Second {
				t.Errorf("Expected a 42s run, got %v", loaded.Duration())
			}
			if len(loaded.Criteria) != 1 || loaded.Criteria[0].Status != atomic.TestSuccess {
				t.Errorf("Expected one passed criterion, got %+v", loaded.Criteria)
			}

			// Saving again replaces the record.
			rec.Verdict = scenario.VerdictFailure
			if err := s.SaveRun(ctx, rec); err != nil {
				t.Fatalf("Failed to save run: %v", err)
			}
			loaded, err = s.LoadRun(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Failed to load run: %v", err)
			}
			if loaded.Verdict != scenario.VerdictFailure {
				t.Errorf("Expected verdict %s after resave, got %s", scenario.VerdictFailure, loaded.Verdict)
			}
		})
	}
}

func TestLoadMissingRun(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loaded, err := s.LoadRun(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("Expected no error for missing run, got: %v", err)
			}
			if loaded != nil {
				t.Errorf("Expected nil record, got %+v", loaded)
			}
		})
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty, err := s.ListRuns(ctx, 0)
			if err != nil {
				t.Fatalf("Failed to list runs: %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("Expected no runs, got %d", len(empty))
			}

			for i, v := range []scenario.Verdict{scenario.VerdictSuccess, scenario.VerdictTimeout, scenario.VerdictFailure} {
				rec := newRecord("run", v, base.Add(time.Duration(i)*time.Minute))
				if err := s.SaveRun(ctx, rec); err != nil {
					t.Fatalf("Failed to save run: %v", err)
				}
			}

			all, err := s.ListRuns(ctx, 0)
			if err != nil {
				t.Fatalf("Failed to list runs: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("Expected 3 runs, got %d", len(all))
			}
			if all[0].Verdict != scenario.VerdictFailure || all[2].Verdict != scenario.VerdictSuccess {
				t.Errorf("Expected newest first, got %s ... %s", all[0].Verdict, all[2].Verdict)
			}

			two, err := s.ListRuns(ctx, 2)
			if err != nil {
				t.Fatalf("Failed to list runs: %v", err)
			}
			if len(two) != 2 {
				t.Fatalf("Expected 2 runs, got %d", len(two))
			}
			if two[1].Verdict != scenario.VerdictTimeout {
				t.Errorf("Expected %s second, got %s", scenario.VerdictTimeout, two[1].Verdict)
			}
		})
	}
}

func TestSaveNilRun(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SaveRun(context.Background(), nil); err == nil {
				t.Error("Expected error saving nil record")
			}
		})
	}
}

func TestMockStoragePingAndSaveErrors(t *testing.T) {
	m := NewMockStorage()
	boom := errors.New("connection refused")
	m.SetPingError(boom)
	if err := m.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected ping error %v, got %v", boom, err)
	}
	m.SetPingSuccess()
	if err := m.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}

	m.SetSaveError(boom)
	rec := newRecord("run", scenario.VerdictSuccess, time.Now())
	if err := m.SaveRun(context.Background(), rec); !errors.Is(err, boom) {
		t.Errorf("Expected save error %v, got %v", boom, err)
	}
}

func TestRedisStorageBadURL(t *testing.T) {
	_, err := NewRedisStorage(context.Background(), "not-a-url://", testLogger())
	if err == nil {
		t.Fatal("Expected error for bad redis URL")
	}
}

func TestNewPicksBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.Config{StorageBackend: config.StorageMemory}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open memory storage: %v", err)
	}
	if _, ok := s.(*MockStorage); !ok {
		t.Errorf("Expected *MockStorage, got %T", s)
	}

	s, err = New(ctx, &config.Config{
		StorageBackend: config.StorageSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "nested", "runs.db"),
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to open sqlite storage: %v", err)
	}
	if _, ok := s.(*SQLiteStorage); !ok {
		t.Errorf("Expected *SQLiteStorage, got %T", s)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Failed to close sqlite storage: %v", err)
	}

	if _, err := New(ctx, &config.Config{StorageBackend: "etcd"}, testLogger()); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

// flakyStorage refuses the first failures pings.
type flakyStorage struct {
	*MockStorage
	failures int
	pings    int
}

func (f *flakyStorage) Ping(ctx context.Context) error {
	f.pings++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForConnection(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		attempts int
		wantErr  bool
	}{
		{"ready at once", 0, 3, false},
		{"ready on the last attempt", 2, 3, false},
		{"never ready", 5, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakyStorage{MockStorage: NewMockStorage(), failures: tt.failures}
			err := WaitForConnection(context.Background(), s, tt.attempts, time.Millisecond, testLogger())
			if tt.wantErr && err == nil {
				t.Fatal("Expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			expected := tt.failures + 1
			if expected > tt.attempts {
				expected = tt.attempts
			}
			if s.pings != expected {
				t.Errorf("Expected %d pings, got %d", expected, s.pings)
			}
		})
	}
}

func TestWaitForConnectionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &flakyStorage{MockStorage: NewMockStorage(), failures: 10}
	err := WaitForConnection(ctx, s, 10, time.Hour, testLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRedisStorageWaitsForLateServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s, err := NewRedisStorage(context.Background(), "redis://"+addr, testLogger())
	if err != nil {
		t.Fatalf("Creating storage must not need a live server: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := WaitForConnection(context.Background(), s, 2, time.Millisecond, testLogger()); err == nil {
		t.Fatal("Expected an error while the server is down")
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("Failed to restart miniredis: %v", err)
	}
	if err := WaitForConnection(context.Background(), s, 50, 20*time.Millisecond, testLogger()); err != nil {
		t.Errorf("Expected the restarted server to answer: %v", err)
	}
}
