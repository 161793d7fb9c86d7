// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/store"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Memory is a concurrency-safe in-memory Store. Set Err to make every call
// fail with it.
type Memory struct {
	mu   sync.Mutex
	Err  error
	keys map[uuid.UUID]*models.APIKey
	jobs map[uuid.UUID]*models.Job
	logs map[uuid.UUID][]*models.PauseLog
	subs map[string]*models.PushSubscription

	// BeforeSave runs before each SaveJobClock with the lock released, so a
	// test can change the job underneath a transition.
	BeforeSave func()
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		keys: make(map[uuid.UUID]*models.APIKey),
		jobs: make(map[uuid.UUID]*models.Job),
		logs: make(map[uuid.UUID][]*models.PauseLog),
		subs: make(map[string]*models.PushSubscription),
	}
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *Memory) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return m.Err
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	k, ok := m.keys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

func (m *Memory) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (m *Memory) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.Job
	for _, j := range m.jobs {
		if filter.TechnicianID != uuid.Nil && j.TechnicianID != filter.TechnicianID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, j.Status) {
			continue
		}
		if slices.Contains(filter.ExcludeStatus, j.Status) {
			continue
		}
		c := *j
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) SaveJobClock(_ context.Context, job *models.Job, fromStatus string, change store.PauseLogChange) error {
	if m.BeforeSave != nil {
		m.BeforeSave()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cur, ok := m.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != fromStatus {
		return store.ErrConflict
	}
	c := *job
	m.jobs[job.ID] = &c

	if change.Close != nil {
		logs := m.logs[job.ID]
		for i := len(logs) - 1; i >= 0; i-- {
			if logs[i].ResumedAt == nil {
				at := *change.Close
				logs[i].ResumedAt = &at
				break
			}
		}
	}
	if change.Open != nil {
		l := *change.Open
		l.JobID = job.ID
		m.logs[job.ID] = append(m.logs[job.ID], &l)
	}
	return nil
}

func (m *Memory) ListPauseLogs(_ context.Context, jobID uuid.UUID) ([]*models.PauseLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.PauseLog
	for _, l := range m.logs[jobID] {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) UpsertPushSubscription(_ context.Context, sub *models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if cur, ok := m.subs[sub.Endpoint]; ok {
		sub.ID = cur.ID
		sub.CreatedAt = cur.CreatedAt
	}
	c := *sub
	m.subs[sub.Endpoint] = &c
	return nil
}

func (m *Memory) DeletePushSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.subs[endpoint]; !ok {
		return store.ErrNotFound
	}
	delete(m.subs, endpoint)
	return nil
}

func (m *Memory) ListPushSubscriptions(_ context.Context, technicianID uuid.UUID) ([]*models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*models.PushSubscription
	for _, s := range m.subs {
		if s.TechnicianID == technicianID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// SetJob replaces a stored job directly.
func (m *Memory) SetJob(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.jobs[job.ID] = &c
}

var _ store.Store = (*Memory)(nil)
