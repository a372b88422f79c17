package queue

import (
	"context"
	"errors"
	"time"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job tracks one unit of background work identified by a dedup key.
type Job struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Terminal reports whether the job will not run again.
func (j Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Handler processes one attempt of a job.
type Handler func(ctx context.Context, job Job) error

// FailureHandler is called once when a job gives up.
type FailureHandler func(ctx context.Context, job Job, err error)

// Queue runs keyed jobs with at most one live job per key.
type Queue interface {
	// Enqueue schedules work for key. When a job for key is still queued or
	// running it is returned with created=false and nothing new is scheduled.
	Enqueue(ctx context.Context, key string) (job Job, created bool, err error)
	GetJob(ctx context.Context, jobID string) (Job, bool, error)
	Start(ctx context.Context, concurrency int, handler Handler, onFailed FailureHandler)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Backoff returns base doubled for every attempt after the first, capped at limit.
func Backoff(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
