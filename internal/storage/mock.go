package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/scenario"
)

// MockStorage keeps runs in memory. It backs tests and STORAGE_BACKEND=memory.
type MockStorage struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*scenario.Record
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		runs: make(map[uuid.UUID]*scenario.Record),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every SaveRun fail with err.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveRun(ctx context.Context, rec *scenario.Record) error {
	if rec == nil {
		return errors.New("run record cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	cp := *rec
	m.runs[rec.ID] = &cp
	return nil
}

func (m *MockStorage) LoadRun(ctx context.Context, id uuid.UUID) (*scenario.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MockStorage) ListRuns(ctx context.Context, limit int) ([]*scenario.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*scenario.Record, 0, len(m.runs))
	for _, rec := range m.runs {
		cp := *rec
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
