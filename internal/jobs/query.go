package jobs

import (
	"context"
	"fmt"

	"github.com/example/trackfetch/api-go/internal/model"
	"github.com/example/trackfetch/api-go/internal/store"
)

// Status returns a snapshot of the job record.
func (m *Manager) Status(ctx context.Context, id string) (model.Job, error) {
	return m.registry.Get(ctx, id)
}

// List returns job snapshots, newest first.
func (m *Manager) List(ctx context.Context, opts store.ListOptions) ([]model.Job, error) {
	return m.registry.List(ctx, opts)
}

// Artifact returns the result path of a finished job. The file is checked on
// every call since it may be removed after the job completed.
func (m *Manager) Artifact(ctx context.Context, id string) (model.Job, error) {
	job, err := m.registry.Get(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	if job.Status != model.JobDone {
		return job, fmt.Errorf("%w: status is %s", model.ErrNotReady, job.Status)
	}
	if !m.blobs.Exists(job.ResultPath) {
		return job, fmt.Errorf("%w: %s", model.ErrFileMissing, job.ResultPath)
	}
	return job, nil
}
