package app

import (
	"context"
	"io"
	"testing"
	"time"

	"mockinterview/internal/platform"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
	"mockinterview/pkg/interview"
	"mockinterview/pkg/queue"
	"mockinterview/pkg/store"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, _ string, _ io.Reader) ([]domain.Segment, error) {
	return nil, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, _ []domain.Segment, _ string) (domain.ResponseScores, error) {
	return domain.ResponseScores{Tone: "confident", Speed: "fast", Fluency: "fluent", Relevance: 0.5}, nil
}

func TestWorkersAnalyzeQueuedAnswers(t *testing.T) {
	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	bus := events.NewMemoryBus()

	a, err := New(Config{
		Platform:    platform.Config{Store: st, Queue: q, Bus: bus, DataDir: t.TempDir()},
		CallTimeout: time.Second,
		Concurrency: 2,
		Transcriber: stubTranscriber{},
		Analyzer:    stubAnalyzer{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = a.Close()
	})
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	now := time.Now().UTC()
	session := domain.Session{ID: "s1", UserID: "u1", TargetRole: domain.JobRoleSDE, State: domain.SessionAnswersInProgress, StartedAt: now}
	if err := st.SaveSession(session); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if _, err := st.InsertQuestions("s1", []domain.Question{{ID: "q1", SessionID: "s1", Position: 1, Text: "Why Go?", CreatedAt: now}}); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
	answer := domain.Answer{ID: "a1", QuestionID: "q1", SessionID: "s1", UserID: "u1", Transcript: "because of goroutines", AnalysisStatus: domain.AnalysisPending, RespondedAt: now, UpdatedAt: now}
	if err := st.SaveAnswer(answer); err != nil {
		t.Fatalf("save answer: %v", err)
	}

	// the interview service enqueues through its own producer-only dispatcher
	producer, err := interview.NewDispatcher(interview.DispatcherConfig{Store: st, Queue: q, Bus: bus})
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	job, err := producer.Dispatch(ctx, "a1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var got queue.Job
	for time.Now().Before(deadline) {
		got, _, err = a.Job(ctx, job.ID)
		if err == nil && got.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got.Status != queue.StatusDone {
		t.Fatalf("expected job done, got %+v (%v)", got, err)
	}
	result, ok, err := st.GetAnalysis("a1")
	if err != nil || !ok || result.Relevance != 0.5 {
		t.Fatalf("expected stored analysis, got %+v %v %v", result, ok, err)
	}

	for time.Now().Before(deadline) {
		list, _ := st.ListNotifications("u1")
		if len(list) == 2 {
			if list[0].Kind != domain.NotifyReportReady || list[1].Kind != domain.NotifyAnswerScored {
				t.Fatalf("unexpected notification order %+v", list)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for notifications")
}

func TestJobUnknown(t *testing.T) {
	a, err := New(Config{
		Platform:    platform.Config{DataDir: t.TempDir()},
		Transcriber: stubTranscriber{},
		Analyzer:    stubAnalyzer{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if _, ok, err := a.Job(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("expected missing job, got ok=%v err=%v", ok, err)
	}
	if health := a.Health(context.Background()); len(health) != 0 {
		t.Fatalf("expected healthy platform, got %v", health)
	}
}
