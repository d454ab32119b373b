package repository

import (
	"context"
	"maps"
	"sync"

	"github.com/nadmax/reportd/internal/task"
)

// MockRepository is an in-memory Repository that records its calls.
type MockRepository struct {
	mu             sync.Mutex
	Infos          map[string]task.RuntimeInfo
	Runs           []RunRecord
	LoadCalls      int
	SaveCalls      []map[string]task.RuntimeInfo
	LoadError      error
	SaveError      error
	RecordRunError error
	RecentRunsErr  error
	Closed         bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Infos: make(map[string]task.RuntimeInfo),
		Runs:  make([]RunRecord, 0),
	}
}

func (m *MockRepository) Load(ctx context.Context) (map[string]task.RuntimeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LoadCalls++
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return maps.Clone(m.Infos), nil
}

func (m *MockRepository) Save(ctx context.Context, infos map[string]task.RuntimeInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls = append(m.SaveCalls, maps.Clone(infos))
	if m.SaveError != nil {
		return m.SaveError
	}

	m.Infos = maps.Clone(infos)
	return nil
}

func (m *MockRepository) RecordRun(ctx context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordRunError != nil {
		return m.RecordRunError
	}
	m.Runs = append(m.Runs, run)
	return nil
}

func (m *MockRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecentRunsErr != nil {
		return nil, m.RecentRunsErr
	}

	limit = runLimit(limit)
	out := make([]RunRecord, 0, min(limit, len(m.Runs)))
	for i := len(m.Runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Runs[i])
	}
	return out, nil
}

func (m *MockRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockRepository) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.SaveCalls)
}

func (m *MockRepository) LastSaved() map[string]task.RuntimeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SaveCalls) == 0 {
		return nil
	}
	return m.SaveCalls[len(m.SaveCalls)-1]
}
