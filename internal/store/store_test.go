package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trackfetch/api-go/internal/model"
)

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	sqlite, err := OpenSQLite()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Registry{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestRegistryInsertAndGet(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			job := model.NewJob("job-1", "https://example.com/track", now)
			require.NoError(t, reg.Insert(ctx, job))

			got, err := reg.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, got.Status)
			assert.Equal(t, "https://example.com/track", got.SourceURL)
			assert.True(t, got.CreatedAt.Equal(now))
			assert.Nil(t, got.StartedAt)

			err = reg.Insert(ctx, job)
			assert.True(t, errors.Is(err, model.ErrDuplicateID))

			_, err = reg.Get(ctx, "missing")
			assert.True(t, errors.Is(err, model.ErrNotFound))
		})
	}
}

func TestRegistryUpdate(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			require.NoError(t, reg.Insert(ctx, model.NewJob("job-1", "https://example.com/track", now)))

			updated, err := reg.Update(ctx, "job-1", func(j *model.Job) error { return j.Start(now) })
			require.NoError(t, err)
			assert.Equal(t, model.JobRunning, updated.Status)

			_, err = reg.Update(ctx, "job-1", func(j *model.Job) error { return j.Finish("/out/a.mp3", now) })
			require.NoError(t, err)

			got, err := reg.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.JobDone, got.Status)
			assert.Equal(t, "/out/a.mp3", got.ResultPath)
			require.NotNil(t, got.StartedAt)
			require.NotNil(t, got.FinishedAt)
		})
	}
}

func TestRegistryUpdateErrorLeavesRecordUntouched(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, reg.Insert(ctx, model.NewJob("job-1", "https://example.com/track", time.Now())))

			boom := errors.New("boom")
			_, err := reg.Update(ctx, "job-1", func(j *model.Job) error {
				j.Status = model.JobDone
				j.ResultPath = "/nope"
				return boom
			})
			assert.True(t, errors.Is(err, boom))

			got, err := reg.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, got.Status)
			assert.Empty(t, got.ResultPath)

			_, err = reg.Update(ctx, "missing", func(*model.Job) error { return nil })
			assert.True(t, errors.Is(err, model.ErrNotFound))
		})
	}
}

func TestRegistryReturnsSnapshots(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			require.NoError(t, reg.Insert(ctx, model.NewJob("job-1", "https://example.com/track", now)))
			_, err := reg.Update(ctx, "job-1", func(j *model.Job) error { return j.Start(now) })
			require.NoError(t, err)

			got, err := reg.Get(ctx, "job-1")
			require.NoError(t, err)
			got.Status = model.JobError
			*got.StartedAt = now.Add(time.Hour)

			again, err := reg.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.JobRunning, again.Status)
			assert.Equal(t, now.UnixNano(), again.StartedAt.UnixNano())
		})
	}
}

func TestRegistryList(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			for i := range 5 {
				job := model.NewJob(fmt.Sprintf("job-%d", i), "https://example.com/track", base.Add(time.Duration(i)*time.Second))
				require.NoError(t, reg.Insert(ctx, job))
			}
			_, err := reg.Update(ctx, "job-2", func(j *model.Job) error { return j.Start(base) })
			require.NoError(t, err)

			all, err := reg.List(ctx, ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "job-4", all[0].ID)
			assert.Equal(t, "job-0", all[4].ID)

			limited, err := reg.List(ctx, ListOptions{Limit: 2})
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "job-3", limited[1].ID)

			running := model.JobRunning
			filtered, err := reg.List(ctx, ListOptions{Status: &running})
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			assert.Equal(t, "job-2", filtered[0].ID)
		})
	}
}

func TestRegistryConcurrentInsertAndUpdate(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 50

			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := fmt.Sprintf("job-%d", i)
					assert.NoError(t, reg.Insert(ctx, model.NewJob(id, fmt.Sprintf("https://example.com/%d", i), time.Now())))
					_, err := reg.Update(ctx, id, func(j *model.Job) error { return j.Start(time.Now()) })
					assert.NoError(t, err)
					_, err = reg.Get(ctx, id)
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			all, err := reg.List(ctx, ListOptions{Limit: n * 2})
			require.NoError(t, err)
			require.Len(t, all, n)
			seen := make(map[string]bool, n)
			for _, job := range all {
				assert.Equal(t, model.JobRunning, job.Status)
				seen[job.ID] = true
			}
			assert.Len(t, seen, n)
		})
	}
}
