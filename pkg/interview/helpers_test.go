package interview

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
	"mockinterview/pkg/queue"
	"mockinterview/pkg/storage"
	"mockinterview/pkg/store"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses [][]string
	err       error
	calls     int
	release   chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, _ domain.ResumeFields, _ domain.JobRole) ([]string, error) {
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(g.responses) == 0 {
		return nil, nil
	}
	out := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return out, nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeTranscriber struct {
	calls    atomic.Int32
	failures int32
	segments []domain.Segment
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) ([]domain.Segment, error) {
	n := f.calls.Add(1)
	if _, err := io.ReadAll(audio); err != nil {
		return nil, err
	}
	if n <= f.failures {
		return nil, errors.New("garbled audio")
	}
	return f.segments, nil
}

type fakeAnalyzer struct {
	calls    atomic.Int32
	running  atomic.Int32
	maxSeen  atomic.Int32
	failures int32
	delay    time.Duration
	block    bool
	scores   func(question string) domain.ResponseScores

	mu   sync.Mutex
	seen [][]domain.Segment
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, segments []domain.Segment, question string) (domain.ResponseScores, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, segments)
	f.mu.Unlock()
	if n <= f.failures {
		return domain.ResponseScores{}, errors.New("model returned prose")
	}
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.block {
		<-ctx.Done()
		return domain.ResponseScores{}, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.scores != nil {
		return f.scores(question), nil
	}
	return domain.ResponseScores{Tone: "confident", Speed: "moderate", Fluency: "fluent", Relevance: 0.9}, nil
}

type harness struct {
	store      *store.MemoryStore
	bus        *events.MemoryBus
	queue      *queue.MemoryQueue
	objects    *storage.FileStore
	generator  *fakeGenerator
	transcribe *fakeTranscriber
	analyzer   *fakeAnalyzer
	dispatcher *Dispatcher
	lifecycle  *Lifecycle
	notifier   *Notifier
	reporter   *Reporter
}

func newHarness(t *testing.T, callTimeout time.Duration, maxRetries int) *harness {
	t.Helper()
	objects, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	h := &harness{
		store:      store.NewMemoryStore(),
		bus:        events.NewMemoryBus(),
		queue:      queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxRetries: maxRetries, RetryDelay: time.Millisecond}),
		objects:    objects,
		generator:  &fakeGenerator{responses: [][]string{{"Q1?", "Q2?", "Q3?"}}},
		transcribe: &fakeTranscriber{segments: []domain.Segment{{Start: 0, End: 2, Text: "I like Go"}}},
		analyzer:   &fakeAnalyzer{},
	}
	h.dispatcher, err = NewDispatcher(DispatcherConfig{
		Store:       h.store,
		Objects:     h.objects,
		Transcriber: h.transcribe,
		Analyzer:    h.analyzer,
		Queue:       h.queue,
		Bus:         h.bus,
		CallTimeout: callTimeout,
		Concurrency: 4,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	h.lifecycle, err = NewLifecycle(LifecycleConfig{
		Store:       h.store,
		Objects:     h.objects,
		Generator:   h.generator,
		Dispatcher:  h.dispatcher,
		CallTimeout: callTimeout,
	})
	if err != nil {
		t.Fatalf("new lifecycle: %v", err)
	}
	h.notifier = NewNotifier(h.store)
	h.reporter = NewReporter(h.store)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.bus.Subscribe(ctx, h.notifier.Handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return h
}

func (h *harness) startWorkers(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.dispatcher.Start(ctx); err != nil {
		t.Fatalf("start workers: %v", err)
	}
}

// readySession creates a session for user-1 with the given questions.
func (h *harness) readySession(t *testing.T, questions ...string) (domain.Session, []domain.Question) {
	t.Helper()
	h.generator.responses = [][]string{questions}
	session, err := h.lifecycle.CreateSession(context.Background(), "user-1", domain.Resume{}, domain.JobRoleSDE)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	qs, err := h.lifecycle.SessionQuestions(context.Background(), "user-1", session.ID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	return session, qs
}

func (h *harness) answerStatus(t *testing.T, answerID string) domain.Answer {
	t.Helper()
	a, ok, err := h.store.GetAnswer(answerID)
	if err != nil || !ok {
		t.Fatalf("get answer %s: ok=%v err=%v", answerID, ok, err)
	}
	return a
}

func (f *fakeAnalyzer) Seen() [][]domain.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.Segment(nil), f.seen...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func audioSubmission() AnswerSubmission {
	data := "fake-audio"
	return AnswerSubmission{
		Audio:         strings.NewReader(data),
		AudioSize:     int64(len(data)),
		AudioFilename: "answer.wav",
		ContentType:   "audio/wav",
	}
}
