package model

import (
	"errors"
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobDone, JobError:
		return true
	}
	return false
}

// ErrorKind classifies why a job ended in the error state.
type ErrorKind string

const (
	KindConversionFailed ErrorKind = "conversion_failed"
	KindArtifactMissing  ErrorKind = "artifact_missing"
	KindInternalFault    ErrorKind = "internal_fault"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate job id")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotReady          = errors.New("job not ready")
	ErrFileMissing       = errors.New("artifact file missing")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Job is one conversion request and its lifecycle.
//
// - StartedAt/FinishedAt stay nil until the job reaches that stage.
// - ResultPath is absolute and only set on the done transition.
// - Error and ErrorKind are only set on the error transition.
type Job struct {
	ID         string     `json:"id"`
	SourceURL  string     `json:"sourceUrl"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ResultPath string     `json:"resultPath,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  ErrorKind  `json:"errorKind,omitempty"`
}

// NewJob returns a pending record created at now.
func NewJob(id, sourceURL string, now time.Time) Job {
	return Job{
		ID:        id,
		SourceURL: sourceURL,
		Status:    JobPending,
		CreatedAt: now,
	}
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	out := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// Start moves a pending job to running.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(JobRunning); err != nil {
		return err
	}
	j.StartedAt = &now
	return nil
}

// Finish moves a running job to done with the artifact at path.
func (j *Job) Finish(path string, now time.Time) error {
	if path == "" {
		return fmt.Errorf("finish job %s: empty result path", j.ID)
	}
	if err := j.transition(JobDone); err != nil {
		return err
	}
	j.ResultPath = path
	j.FinishedAt = &now
	return nil
}

// Fail moves a non-terminal job to error.
func (j *Job) Fail(kind ErrorKind, msg string, now time.Time) error {
	if err := j.transition(JobError); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = msg
	j.FinishedAt = &now
	return nil
}

func (j *Job) transition(to JobStatus) error {
	if !canTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// canTransition enforces pending -> running -> {done | error}. A pending
// job may also fail directly when it never got to start.
func canTransition(from, to JobStatus) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobError
	case JobRunning:
		return to == JobDone || to == JobError
	default:
		return false
	}
}
