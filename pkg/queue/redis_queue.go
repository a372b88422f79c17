package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"mockinterview/internal/util"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisJobQueue runs keyed jobs on a Redis stream consumer group. A key holds
// an in-flight marker from enqueue until the job finishes, and a lease while
// a consumer executes it, so reclaimed duplicates never run concurrently.
type RedisJobQueue struct {
	client        *redis.Client
	stream        string
	group         string
	consumerBase  string
	jobTTL        time.Duration
	maxRetries    int
	block         time.Duration
	claimIdle     time.Duration
	leaseTTL      time.Duration
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	maxLen        int64
	readCount     int64
	claimCount    int64
	once          sync.Once
}

type RedisQueueConfig struct {
	Addr          string
	Password      string
	Stream        string
	Group         string
	Consumer      string
	JobTTL        time.Duration
	MaxRetries    int
	Block         time.Duration
	ClaimIdle     time.Duration
	LeaseTTL      time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	MaxLen        int64
	ReadCount     int64
	ClaimCount    int64
}

func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = claimIdle
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxRetryDelay := cfg.MaxRetryDelay
	if maxRetryDelay <= 0 {
		maxRetryDelay = time.Minute
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisJobQueue{
		client:        redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:        stream,
		group:         group,
		consumerBase:  consumer,
		jobTTL:        jobTTL,
		maxRetries:    maxRetries,
		block:         block,
		claimIdle:     claimIdle,
		leaseTTL:      leaseTTL,
		retryDelay:    retryDelay,
		maxRetryDelay: maxRetryDelay,
		maxLen:        maxLen,
		readCount:     readCount,
		claimCount:    claimCount,
	}, nil
}

// Ping checks Redis connectivity.
func (q *RedisJobQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, key string) (Job, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Job{}, false, errors.New("job key required")
	}
	now := time.Now().UTC()
	job := Job{
		ID:        util.NewID(),
		Key:       key,
		Status:    StatusQueued,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inflight := q.inflightKey(key)
	claimed, err := q.client.SetNX(ctx, inflight, job.ID, q.jobTTL).Result()
	if err != nil {
		return Job{}, false, err
	}
	if !claimed {
		existingID, err := q.client.Get(ctx, inflight).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return Job{}, false, err
		}
		if existingID != "" {
			existing, found, err := q.GetJob(ctx, existingID)
			if err != nil {
				return Job{}, false, err
			}
			if found && !existing.Terminal() {
				return existing, false, nil
			}
		}
		// stale marker left by an expired job hash
		if err := q.client.Set(ctx, inflight, job.ID, q.jobTTL).Err(); err != nil {
			return Job{}, false, err
		}
	}
	if err := q.writeStatus(ctx, job); err != nil {
		_ = releaseScript.Run(ctx, q.client, []string{inflight}, job.ID).Err()
		return Job{}, false, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id": job.ID,
			"key":    job.Key,
		},
	}).Err(); err != nil {
		_ = releaseScript.Run(ctx, q.client, []string{inflight}, job.ID).Err()
		return Job{}, false, err
	}
	return job, true, nil
}

func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(data) == 0 {
		return Job{}, false, nil
	}
	return decodeJob(jobID, data), true, nil
}

func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler, onFailed FailureHandler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler, onFailed)
	}
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("queue group create failed", "stream", q.stream, "group", q.group, "err", err)
		}
	})
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler, onFailed FailureHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, consumer, msg, handler, onFailed)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				slog.Warn("queue read failed", "stream", q.stream, "consumer", consumer, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, consumer, msg, handler, onFailed)
			}
		}
	}
}

func (q *RedisJobQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, consumer string, msg redis.XMessage, handler Handler, onFailed FailureHandler) {
	jobID, _ := msg.Values["job_id"].(string)
	key, _ := msg.Values["key"].(string)
	if jobID == "" || key == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	release, ok, err := q.acquireLease(ctx, key, consumer+":"+msg.ID)
	if err != nil {
		slog.Warn("queue lease failed", "job_id", jobID, "key", key, "err", err)
		return
	}
	if !ok {
		// another consumer is running this key; the message stays pending
		return
	}
	job, err := q.markProcessing(ctx, jobID, key)
	if err != nil {
		release()
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(ctx, job)
	release()
	if err == nil {
		_ = q.markDone(ctx, job)
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if ctx.Err() != nil {
		// interrupted by shutdown: the attempt does not count and the message
		// stays pending for the next consumer
		job.Attempts--
		job.Status = StatusQueued
		job.UpdatedAt = time.Now().UTC()
		_ = q.writeStatus(context.WithoutCancel(ctx), job)
		return
	}
	if IsPermanent(err) || job.Attempts >= q.maxRetries {
		_ = q.markFailed(ctx, job, err.Error())
		q.ackAndDel(ctx, msg.ID)
		if onFailed != nil {
			job.Status = StatusFailed
			job.ErrorMessage = err.Error()
			onFailed(ctx, job, err)
		}
		return
	}
	_ = q.markQueued(ctx, jobID, err.Error())
	if delay := Backoff(q.retryDelay, job.Attempts, q.maxRetryDelay); delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if err := q.requeueAndAck(ctx, msg.ID, jobID, key); err != nil {
		slog.Warn("queue requeue failed", "job_id", jobID, "key", key, "err", err)
	}
}

// acquireLease takes the execution lease for key and keeps it alive until
// the returned release func is called.
func (q *RedisJobQueue) acquireLease(ctx context.Context, key, token string) (func(), bool, error) {
	leaseKey := q.leaseKey(key)
	ok, err := q.client.SetNX(ctx, leaseKey, token, q.leaseTTL).Result()
	if err != nil || !ok {
		return nil, ok, err
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(q.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_ = extendScript.Run(hbCtx, q.client, []string{leaseKey}, token, q.leaseTTL.Milliseconds()).Err()
			}
		}
	}()
	return func() {
		cancel()
		<-done
		_ = releaseScript.Run(context.Background(), q.client, []string{leaseKey}, token).Err()
	}, true, nil
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) requeueAndAck(ctx context.Context, msgID, jobID, key string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id": jobID,
			"key":    key,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisJobQueue) markProcessing(ctx context.Context, jobID, key string) (Job, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.ID == "" {
		job = Job{ID: jobID}
	}
	job.Key = key
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusQueued
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisJobQueue) markDone(ctx context.Context, job Job) error {
	job.Status = StatusDone
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, job); err != nil {
		return err
	}
	return releaseScript.Run(ctx, q.client, []string{q.inflightKey(job.Key)}, job.ID).Err()
}

func (q *RedisJobQueue) markFailed(ctx context.Context, job Job, errMsg string) error {
	job.Status = StatusFailed
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, job); err != nil {
		return err
	}
	return releaseScript.Run(ctx, q.client, []string{q.inflightKey(job.Key)}, job.ID).Err()
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, job Job) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"key":       job.Key,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func (q *RedisJobQueue) inflightKey(key string) string {
	return fmt.Sprintf("job:%s:inflight:%s", q.stream, key)
}

func (q *RedisJobQueue) leaseKey(key string) string {
	return fmt.Sprintf("job:%s:lease:%s", q.stream, key)
}

func decodeJob(jobID string, data map[string]string) Job {
	job := Job{ID: jobID}
	job.Key = data["key"]
	job.Status = data["status"]
	job.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
