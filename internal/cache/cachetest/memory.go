// Package cachetest provides an in-memory cache.Cache for tests.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/cache"
)

// Memory is a concurrency-safe in-memory Cache that ignores TTLs. Set Err
// to make every call fail with it.
type Memory struct {
	mu       sync.Mutex
	Err      error
	statuses map[uuid.UUID]cache.JobStatus
	counters map[string]int64
	claims   map[string]bool
}

// NewMemory returns an empty cache.
func NewMemory() *Memory {
	return &Memory{
		statuses: make(map[uuid.UUID]cache.JobStatus),
		counters: make(map[string]int64),
		claims:   make(map[string]bool),
	}
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *Memory) SetJobStatus(_ context.Context, status cache.JobStatus, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.statuses[status.JobID] = status
	return nil
}

func (m *Memory) GetJobStatus(_ context.Context, jobID uuid.UUID) (*cache.JobStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	st, ok := m.statuses[jobID]
	if !ok {
		return nil, false, nil
	}
	return &st, true, nil
}

func (m *Memory) DeleteJobStatus(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, jobID)
	return m.Err
}

func (m *Memory) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.counters[key]++
	return m.counters[key], nil
}

func (m *Memory) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

var _ cache.Cache = (*Memory)(nil)
