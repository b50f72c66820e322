package janitor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/trackfetch/api-go/internal/blob"
)

// Janitor periodically removes old artifacts from the output directory.
// Job records are kept; retrieving a swept artifact reports it missing.
type Janitor struct {
	blobs  blob.LocalFS
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func New(blobs blob.LocalFS, ttl time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Janitor{
		blobs:  blobs,
		ttl:    ttl,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// Start schedules Sweep with a standard 5-field cron expression.
func (j *Janitor) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, func() {
		if _, err := j.Sweep(); err != nil {
			j.logger.Error("artifact sweep failed", "err", err)
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("artifact sweep scheduled", "cron", spec, "ttl", j.ttl)
	return nil
}

// Stop halts scheduling and returns a context done once a running sweep ends.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) Sweep() (int, error) {
	removed, err := j.blobs.Sweep(j.now().Add(-j.ttl))
	if removed > 0 {
		j.logger.Info("artifacts swept", "removed", removed)
	}
	return removed, err
}
