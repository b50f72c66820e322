package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/example/trackfetch/api-go/internal/blob"
	"github.com/example/trackfetch/api-go/internal/convert"
	"github.com/example/trackfetch/api-go/internal/model"
	"github.com/example/trackfetch/api-go/internal/store"
)

var defaultSchemes = []string{"http", "https"}

type Options struct {
	// Extensions accepted as artifacts, e.g. ".mp3". Empty accepts any file.
	Extensions []string
	// AllowedSchemes for submitted URLs. Defaults to http and https.
	AllowedSchemes []string
	// MaxConcurrent caps how many conversions run at once. Zero is unbounded.
	MaxConcurrent int
	Logger        *slog.Logger
}

// Manager accepts conversion jobs, runs each one on its own goroutine and
// answers status and artifact queries from the registry.
type Manager struct {
	registry  store.Registry
	blobs     blob.LocalFS
	converter convert.Converter
	exts      []string
	schemes   []string
	sem       *semaphore.Weighted
	logger    *slog.Logger
	wg        sync.WaitGroup

	now   func() time.Time
	newID func() string
}

func NewManager(registry store.Registry, blobs blob.LocalFS, converter convert.Converter, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	schemes := opts.AllowedSchemes
	if len(schemes) == 0 {
		schemes = defaultSchemes
	}
	m := &Manager{
		registry:  registry,
		blobs:     blobs,
		converter: converter,
		exts:      opts.Extensions,
		schemes:   schemes,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if opts.MaxConcurrent > 0 {
		m.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return m
}

// Submit validates sourceURL, records a pending job and starts it in the
// background. It returns as soon as the record is visible to queries.
func (m *Manager) Submit(ctx context.Context, sourceURL string) (model.Job, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := ValidateURL(sourceURL, m.schemes); err != nil {
		return model.Job{}, err
	}

	job := model.NewJob(m.newID(), sourceURL, m.now())
	if err := m.registry.Insert(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}
	m.logger.Info("job submitted", "job_id", job.ID, "url", sourceURL)

	m.wg.Add(1)
	go m.run(job.ID, sourceURL)
	return job, nil
}

// Wait blocks until every submitted job has reached a terminal state.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// ValidateURL accepts absolute URLs whose scheme is one of schemes.
func ValidateURL(raw string, schemes []string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", model.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == strings.ToLower(s) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: unsupported url scheme %q (allowed: %s)", model.ErrInvalidInput, u.Scheme, strings.Join(schemes, ", "))
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", model.ErrInvalidInput)
	}
	return nil
}

func (m *Manager) run(id, sourceURL string) {
	defer m.wg.Done()
	ctx := context.Background()
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			m.fail(ctx, id, model.KindInternalFault, fmt.Sprintf("internal fault: %v", r))
		}
	}()

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.fail(ctx, id, model.KindInternalFault, fmt.Sprintf("internal fault: %v", err))
			return
		}
		defer m.sem.Release(1)
	}

	path, err := m.execute(ctx, id, sourceURL)
	if err != nil {
		m.fail(ctx, id, classify(err), err.Error())
		return
	}
	m.logger.Info("job done", "job_id", id, "result", path, "duration", m.now().Sub(start))
}

func (m *Manager) execute(ctx context.Context, id, sourceURL string) (string, error) {
	job, err := m.registry.Update(ctx, id, func(j *model.Job) error {
		return j.Start(m.now())
	})
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	m.logger.Debug("job running", "job_id", id)

	dir, err := m.blobs.JobDir(id)
	if err != nil {
		return "", fmt.Errorf("prepare output dir: %w", err)
	}

	res, err := m.converter.Convert(ctx, sourceURL, dir)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", convert.NewConversionError(res, nil)
	}

	path, err := m.blobs.LatestArtifact(dir, m.exts, *job.StartedAt)
	if err != nil {
		return "", err
	}

	if _, err := m.registry.Update(ctx, id, func(j *model.Job) error {
		return j.Finish(path, m.now())
	}); err != nil {
		return "", fmt.Errorf("finish job: %w", err)
	}
	return path, nil
}

func (m *Manager) fail(ctx context.Context, id string, kind model.ErrorKind, msg string) {
	_, err := m.registry.Update(ctx, id, func(j *model.Job) error {
		return j.Fail(kind, msg, m.now())
	})
	if err != nil {
		m.logger.Error("record job failure", "job_id", id, "kind", kind, "message", msg, "err", err)
		return
	}
	m.logger.Warn("job failed", "job_id", id, "kind", kind, "message", msg)
}

func classify(err error) model.ErrorKind {
	var convErr *convert.ConversionError
	switch {
	case errors.As(err, &convErr):
		return model.KindConversionFailed
	case errors.Is(err, blob.ErrNoArtifact):
		return model.KindArtifactMissing
	default:
		return model.KindInternalFault
	}
}
