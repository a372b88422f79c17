package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mockinterview/internal/util"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
	"mockinterview/pkg/queue"
	"mockinterview/pkg/storage"
	"mockinterview/pkg/store"
)

type DispatcherConfig struct {
	Store       store.Store
	Objects     storage.ObjectStore
	Transcriber Transcriber
	Analyzer    ResponseAnalyzer
	Queue       queue.Queue
	Bus         events.Bus
	// CallTimeout bounds each Transcriber and ResponseAnalyzer call.
	CallTimeout time.Duration
	Concurrency int
}

// Dispatcher turns submitted answers into analysis jobs. The queue keeps at
// most one live job per answer; the dispatcher additionally serializes
// execution per answer inside the process.
type Dispatcher struct {
	store       store.Store
	objects     storage.ObjectStore
	transcriber Transcriber
	analyzer    ResponseAnalyzer
	queue       queue.Queue
	bus         events.Bus
	callTimeout time.Duration
	concurrency int
	locks       *keyedMutex
	now         func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Dispatcher{
		store:       cfg.Store,
		objects:     cfg.Objects,
		transcriber: cfg.Transcriber,
		analyzer:    cfg.Analyzer,
		queue:       cfg.Queue,
		bus:         cfg.Bus,
		callTimeout: cfg.CallTimeout,
		concurrency: cfg.Concurrency,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}, nil
}

// Dispatch enqueues analysis keyed by answerID. While a job for the answer is
// queued or running the existing job is returned and nothing is added.
func (d *Dispatcher) Dispatch(ctx context.Context, answerID string) (queue.Job, error) {
	_, ok, err := d.store.GetAnswer(answerID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("load answer: %w", err)
	}
	if !ok {
		return queue.Job{}, fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
	}
	job, created, err := d.queue.Enqueue(ctx, answerID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("enqueue analysis: %w", err)
	}
	if !created {
		util.LoggerFromContext(ctx).Info("analysis already in flight", "answer_id", answerID, "job_id", job.ID)
	}
	return job, nil
}

// Job looks up a dispatched job.
func (d *Dispatcher) Job(ctx context.Context, jobID string) (queue.Job, bool, error) {
	return d.queue.GetJob(ctx, jobID)
}

// Start runs the workers until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.transcriber == nil || d.analyzer == nil {
		return errors.New("dispatcher workers need a transcriber and an analyzer")
	}
	d.queue.Start(ctx, d.concurrency, d.process, d.exhausted)
	return nil
}

// process runs one attempt. Transient failures are returned for the queue to
// retry; missing rows are permanent.
func (d *Dispatcher) process(ctx context.Context, job queue.Job) error {
	answerID := job.Key
	unlock := d.locks.Lock(answerID)
	defer unlock()

	logger := slog.Default().With("answer_id", answerID, "job_id", job.ID, "attempt", job.Attempts)
	answer, ok, err := d.store.GetAnswer(answerID)
	if err != nil {
		return fmt.Errorf("load answer: %w", err)
	}
	if !ok {
		return queue.Permanent(fmt.Errorf("%w: answer %s", ErrNotFound, answerID))
	}
	question, ok, err := d.store.GetQuestion(answer.QuestionID)
	if err != nil {
		return fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return queue.Permanent(fmt.Errorf("%w: question %s", ErrNotFound, answer.QuestionID))
	}
	if err := d.store.SetAnalysisStatus(answer.ID, domain.AnalysisProcessing, "", job.Attempts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("%w: answer %s", ErrNotFound, answerID))
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	segments, fromAudio, err := d.segments(ctx, answer)
	if err != nil {
		if ctx.Err() != nil {
			return d.interrupted(answer.ID, job, ctx.Err())
		}
		logger.Warn("transcription failed", "err", err)
		return err
	}
	if fromAudio && len(answer.Segments) == 0 {
		if err := d.store.SetTranscript(answer.ID, transcriptText(segments), segments); err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
	}

	scores, err := d.analyze(ctx, segments, question.Text)
	if err != nil {
		if ctx.Err() != nil {
			return d.interrupted(answer.ID, job, ctx.Err())
		}
		logger.Warn("analysis failed", "err", err)
		return err
	}
	result := domain.AnalysisResult{
		AnswerID:   answer.ID,
		Tone:       scores.Tone,
		Speed:      scores.Speed,
		Fluency:    scores.Fluency,
		Relevance:  scores.Relevance,
		AnalyzedAt: d.now().UTC(),
	}
	if fromAudio {
		m := ComputeSpeechMetrics(segments)
		result.PaceWPM = m.PaceWPM
		result.AvgPauseSeconds = m.AvgPauseSeconds
		result.PauseCount = m.PauseCount
		result.RateConsistency = m.RateConsistency
	}
	if err := d.store.ReplaceAnalysis(result); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("%w: answer %s", ErrNotFound, answerID))
		}
		return fmt.Errorf("save analysis: %w", err)
	}
	logger.Info("answer analyzed", "relevance", result.Relevance)

	d.publish(ctx, events.Event{
		ID:         util.NewID(),
		Kind:       events.KindAnswerScored,
		Key:        events.KindAnswerScored + ":" + job.ID,
		UserID:     answer.UserID,
		SessionID:  answer.SessionID,
		AnswerID:   answer.ID,
		JobID:      job.ID,
		OccurredAt: result.AnalyzedAt,
	})
	d.checkComplete(ctx, answer.SessionID)
	return nil
}

// exhausted records the terminal failure once the queue gives up.
func (d *Dispatcher) exhausted(ctx context.Context, job queue.Job, cause error) {
	answerID := job.Key
	unlock := d.locks.Lock(answerID)
	defer unlock()

	logger := slog.Default().With("answer_id", answerID, "job_id", job.ID, "attempt", job.Attempts)
	logger.Error("analysis gave up", "err", cause)
	answer, ok, err := d.store.GetAnswer(answerID)
	if err != nil || !ok {
		return
	}
	if err := d.store.SetAnalysisStatus(answerID, domain.AnalysisFailed, cause.Error(), job.Attempts); err != nil {
		logger.Error("mark analysis failed", "err", err)
		return
	}
	d.checkComplete(ctx, answer.SessionID)
}

// interrupted puts the answer back to pending when shutdown cuts an attempt short.
func (d *Dispatcher) interrupted(answerID string, job queue.Job, cause error) error {
	if err := d.store.SetAnalysisStatus(answerID, domain.AnalysisPending, "", max(job.Attempts-1, 0)); err != nil {
		slog.Warn("reset interrupted analysis", "answer_id", answerID, "err", err)
	}
	return cause
}

// segments reports fromAudio=true for timed segments, including ones saved by
// an earlier attempt.
func (d *Dispatcher) segments(ctx context.Context, answer domain.Answer) ([]domain.Segment, bool, error) {
	if len(answer.Segments) > 0 {
		return answer.Segments, true, nil
	}
	if answer.Transcript != "" {
		return []domain.Segment{{Text: answer.Transcript}}, false, nil
	}
	if answer.AudioKey == "" || d.objects == nil {
		return nil, false, queue.Permanent(fmt.Errorf("%w: answer has neither transcript nor audio", ErrTranscription))
	}
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	audio, err := d.objects.Get(callCtx, answer.AudioKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, false, queue.Permanent(fmt.Errorf("%w: audio missing", ErrTranscription))
		}
		return nil, false, d.callError(ctx, callCtx, ErrTranscription, err)
	}
	defer audio.Close()
	segments, err := d.transcriber.Transcribe(callCtx, answer.AudioFilename, audio)
	if err != nil {
		return nil, false, d.callError(ctx, callCtx, ErrTranscription, err)
	}
	if transcriptText(segments) == "" {
		return nil, false, fmt.Errorf("%w: no speech recognized", ErrTranscription)
	}
	return segments, true, nil
}

func (d *Dispatcher) analyze(ctx context.Context, segments []domain.Segment, question string) (domain.ResponseScores, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	scores, err := d.analyzer.Analyze(callCtx, segments, question)
	if err != nil {
		return domain.ResponseScores{}, d.callError(ctx, callCtx, ErrAnalysis, err)
	}
	if scores.Relevance < 0 || scores.Relevance > 1 {
		return domain.ResponseScores{}, fmt.Errorf("%w: relevance %v outside [0,1]", ErrAnalysis, scores.Relevance)
	}
	return scores, nil
}

// callError classifies a collaborator failure. A hit call deadline is
// ErrTimeout; shutdown is passed through so the job is retried later.
func (d *Dispatcher) callError(ctx, callCtx context.Context, kind, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// checkComplete publishes report-ready once every question has a resolved
// active answer. The event key makes repeats harmless.
func (d *Dispatcher) checkComplete(ctx context.Context, sessionID string) {
	session, ok, err := d.store.GetSession(sessionID)
	if err != nil || !ok {
		return
	}
	report, err := NewReporter(d.store).build(session)
	if err != nil {
		slog.Warn("completion check failed", "session_id", sessionID, "err", err)
		return
	}
	if !report.Complete() {
		return
	}
	d.publish(ctx, events.Event{
		ID:         util.NewID(),
		Kind:       events.KindReportReady,
		Key:        events.KindReportReady + ":" + sessionID,
		UserID:     session.UserID,
		SessionID:  sessionID,
		OccurredAt: d.now().UTC(),
	})
}

func (d *Dispatcher) publish(ctx context.Context, ev events.Event) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		slog.Warn("publish event failed", "kind", ev.Kind, "key", ev.Key, "err", err)
	}
}

func transcriptText(segments []domain.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// keyedMutex serializes work per key and frees entries no one holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
