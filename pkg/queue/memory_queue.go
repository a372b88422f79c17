package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mockinterview/internal/util"
)

// MemoryQueue runs keyed jobs on in-process workers (single instance only).
type MemoryQueue struct {
	mu            sync.Mutex
	jobs          map[string]Job
	inflight      map[string]string // key -> job ID
	pending       chan string
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

type MemoryQueueConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Buffer        int
}

func NewMemoryQueue(cfg MemoryQueueConfig) *MemoryQueue {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{
		jobs:          make(map[string]Job),
		inflight:      make(map[string]string),
		pending:       make(chan string, buffer),
		maxRetries:    maxRetries,
		retryDelay:    retryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, key string) (Job, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Job{}, false, errors.New("job key required")
	}
	q.mu.Lock()
	if id, ok := q.inflight[key]; ok {
		job := q.jobs[id]
		q.mu.Unlock()
		return job, false, nil
	}
	now := time.Now().UTC()
	job := Job{
		ID:        util.NewID(),
		Key:       key,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	q.inflight[key] = job.ID
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return job, true, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.inflight, key)
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return Job{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) GetJob(_ context.Context, jobID string) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	return job, ok, nil
}

func (q *MemoryQueue) Start(ctx context.Context, concurrency int, handler Handler, onFailed FailureHandler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.pending:
					if ctx.Err() != nil {
						q.putBack(id)
						return
					}
					q.run(ctx, id, handler, onFailed)
				}
			}
		}()
	}
}

func (q *MemoryQueue) run(ctx context.Context, jobID string, handler Handler, onFailed FailureHandler) {
	job, ok := q.update(jobID, func(j *Job) {
		j.Attempts++
		j.Status = StatusProcessing
	})
	if !ok {
		return
	}
	err := handler(ctx, job)
	if err == nil {
		q.finish(jobID, StatusDone, "")
		return
	}
	if ctx.Err() != nil {
		// interrupted by shutdown: the attempt does not count
		q.update(jobID, func(j *Job) {
			j.Attempts--
			j.Status = StatusQueued
		})
		q.putBack(jobID)
		return
	}
	if IsPermanent(err) || job.Attempts >= q.maxRetries {
		job = q.finish(jobID, StatusFailed, err.Error())
		if onFailed != nil {
			onFailed(ctx, job, err)
		}
		return
	}
	q.update(jobID, func(j *Job) {
		j.Status = StatusQueued
		j.ErrorMessage = err.Error()
	})
	time.AfterFunc(Backoff(q.retryDelay, job.Attempts, q.maxRetryDelay), func() {
		select {
		case q.pending <- jobID:
		case <-ctx.Done():
		}
	})
}

// putBack returns a job to the buffer for a later Start.
func (q *MemoryQueue) putBack(jobID string) {
	select {
	case q.pending <- jobID:
	default:
	}
}

func (q *MemoryQueue) update(jobID string, fn func(*Job)) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC()
	q.jobs[jobID] = job
	return job, true
}

func (q *MemoryQueue) finish(jobID, status, errMsg string) Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := q.jobs[jobID]
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	q.jobs[jobID] = job
	if q.inflight[job.Key] == jobID {
		delete(q.inflight, job.Key)
	}
	return job
}
