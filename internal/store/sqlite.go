package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/trackfetch/api-go/internal/model"
)

// SQLite is a Registry kept in a private in-memory SQLite database. Nothing
// is written to disk, so records live exactly as long as the process.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

func OpenSQLite() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  source_url TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  finished_at INTEGER,
  result_path TEXT,
  error_message TEXT,
  error_kind TEXT
);
`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Insert(ctx context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, source_url, status, created_at, started_at, finished_at, result_path, error_message, error_kind)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		jobArgs(job)...,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("insert %s: %w", job.ID, model.ErrDuplicateID)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getJob(ctx, s.db, id)
}

func (s *SQLite) Update(ctx context.Context, id string, fn func(*model.Job) error) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Job{}, err
	}
	defer tx.Rollback()

	current, err := getJob(ctx, tx, id)
	if err != nil {
		return model.Job{}, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return current, err
	}
	next.ID = current.ID

	args := jobArgs(next)
	// id moves to the WHERE clause
	args = append(args[1:], next.ID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs
         SET source_url = ?, status = ?, created_at = ?, started_at = ?, finished_at = ?,
             result_path = ?, error_message = ?, error_kind = ?
         WHERE id = ?`,
		args...,
	); err != nil {
		return model.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Job{}, err
	}
	return next, nil
}

func (s *SQLite) List(ctx context.Context, opts ListOptions) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if opts.Status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*opts.Status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const jobColumns = `id, source_url, status, created_at, started_at, finished_at, result_path, error_message, error_kind`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getJob(ctx context.Context, q queryer, id string) (model.Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, model.ErrNotFound
	}
	return job, err
}

func scanJob(row scanner) (model.Job, error) {
	var (
		jid, sourceURL, statusStr string
		createdNs                 int64
		startedNs, finishedNs     sql.NullInt64
		resultPath, errorMsg      sql.NullString
		errorKind                 sql.NullString
	)
	if err := row.Scan(&jid, &sourceURL, &statusStr, &createdNs, &startedNs, &finishedNs, &resultPath, &errorMsg, &errorKind); err != nil {
		return model.Job{}, err
	}
	job := model.Job{
		ID:         jid,
		SourceURL:  sourceURL,
		Status:     model.JobStatus(statusStr),
		CreatedAt:  time.Unix(0, createdNs),
		StartedAt:  nullableTime(startedNs),
		FinishedAt: nullableTime(finishedNs),
		ResultPath: resultPath.String,
		Error:      errorMsg.String,
		ErrorKind:  model.ErrorKind(errorKind.String),
	}
	return job, nil
}

func jobArgs(job model.Job) []any {
	return []any{
		job.ID,
		job.SourceURL,
		string(job.Status),
		job.CreatedAt.UnixNano(),
		nullableUnix(job.StartedAt),
		nullableUnix(job.FinishedAt),
		nullableString(job.ResultPath),
		nullableString(job.Error),
		nullableString(string(job.ErrorKind)),
	}
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
