package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/trackfetch/api-go/internal/model"
)

// Memory is a Registry backed by a map guarded by one lock.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]model.Job)}
}

func (m *Memory) Insert(_ context.Context, job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("insert %s: %w", job.ID, model.ErrDuplicateID)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return model.Job{}, model.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, fn func(*model.Job) error) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[id]
	if !ok {
		return model.Job{}, model.ErrNotFound
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return current.Clone(), err
	}
	next.ID = current.ID
	m.jobs[id] = next
	return next.Clone(), nil
}

func (m *Memory) List(_ context.Context, opts ListOptions) ([]model.Job, error) {
	m.mu.RLock()
	out := make([]model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if opts.Status != nil && job.Status != *opts.Status {
			continue
		}
		out = append(out, job.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := opts.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
