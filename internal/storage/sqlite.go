package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/scenario"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	scenario    TEXT NOT NULL,
	verdict     TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// SQLiteStorage implements Storage on a local SQLite file. The full record is
// kept as JSON; the other columns exist for ordering and ad-hoc queries.
type SQLiteStorage struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (and creates if needed) the database at path.
func NewSQLiteStorage(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Opened SQLite run storage", "path", path)
	return &SQLiteStorage{db: db, path: path, logger: logger}, nil
}

// InitSchema creates the runs table.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", "path", s.path, "error", err)
		return err
	}
	return nil
}

func (s *SQLiteStorage) SaveRun(ctx context.Context, rec *scenario.Record) error {
	if rec == nil {
		return errors.New("run record cannot be nil")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, verdict, started_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scenario = excluded.scenario,
			verdict = excluded.verdict,
			started_at = excluded.started_at,
			payload = excluded.payload`,
		rec.ID.String(), rec.Scenario, string(rec.Verdict), rec.StartedAt.UnixMilli(), string(payload))
	if err != nil {
		s.logger.Error("Failed to save run record", "run_id", rec.ID, "error", err)
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LoadRun(ctx context.Context, id uuid.UUID) (*scenario.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("Run record not found", "run_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run record: %w", err)
	}
	return decodeRecord(payload)
}

func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*scenario.Record, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	records := []*scenario.Record{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func decodeRecord(payload string) (*scenario.Record, error) {
	var rec scenario.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &rec, nil
}
