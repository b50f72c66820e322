package store

import (
	"context"

	"github.com/example/trackfetch/api-go/internal/model"
)

// Registry maps job ids to job records. Every method returns copies, never
// references into the registry's own state.
type Registry interface {
	// Insert adds a new record. It fails with model.ErrDuplicateID if the id exists.
	Insert(ctx context.Context, job model.Job) error
	// Get returns a snapshot or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.Job, error)
	// Update applies fn to a copy of the record and stores the result only if
	// fn returns nil. Concurrent Gets observe either the old or the new record.
	Update(ctx context.Context, id string, fn func(*model.Job) error) (model.Job, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]model.Job, error)
	Close() error
}

type ListOptions struct {
	Status *model.JobStatus
	Limit  int
}

const defaultListLimit = 25

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	return o.Limit
}
