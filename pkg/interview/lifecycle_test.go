package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mockinterview/pkg/domain"
)

func TestGenerationRetryAfterEmptyResult(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	h.generator.responses = [][]string{{}, {"First?", "Second?", "Third?"}}
	ctx := context.Background()

	session, err := h.lifecycle.CreateSession(ctx, "user-1", domain.Resume{}, domain.JobRoleQA)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if session.ID == "" || session.State != domain.SessionCreated {
		t.Fatalf("expected created session to be returned, got %+v", session)
	}
	if _, _, err := h.lifecycle.NextQuestion(ctx, "user-1", session.ID); !errors.Is(err, ErrQuestionsNotReady) {
		t.Fatalf("expected ErrQuestionsNotReady, got %v", err)
	}

	session, questions, err := h.lifecycle.GenerateQuestions(ctx, "user-1", session.ID)
	if err != nil {
		t.Fatalf("retry generation: %v", err)
	}
	if len(questions) != 3 || session.State != domain.SessionQuestionsReady {
		t.Fatalf("unexpected retry result: state=%s questions=%d", session.State, len(questions))
	}

	next, ok, err := h.lifecycle.NextQuestion(ctx, "user-1", session.ID)
	if err != nil || !ok {
		t.Fatalf("next question: ok=%v err=%v", ok, err)
	}
	if next.Text != "First?" || next.Position != 0 {
		t.Fatalf("expected first question in creation order, got %+v", next)
	}
}

func TestGenerateQuestionsIsNoOpOnceReady(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	session, first := h.readySession(t, "A?", "B?")
	calls := h.generator.Calls()

	_, again, err := h.lifecycle.GenerateQuestions(context.Background(), "user-1", session.ID)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if h.generator.Calls() != calls {
		t.Fatalf("generator must not be called for a ready session")
	}
	if len(again) != len(first) || again[0].ID != first[0].ID || again[1].ID != first[1].ID {
		t.Fatalf("question set changed: %+v vs %+v", first, again)
	}
}

func TestConcurrentGenerationDoesNotDuplicate(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	h.generator.responses = [][]string{{}}
	ctx := context.Background()
	session, err := h.lifecycle.CreateSession(ctx, "user-1", domain.Resume{}, domain.JobRoleSDE)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	h.generator.responses = [][]string{{"One?", "Two?", "Three?"}}
	h.generator.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.lifecycle.GenerateQuestions(ctx, "user-1", session.ID)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(h.generator.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	questions, _ := h.store.ListQuestions(session.ID)
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
}

func TestGeneratorErrorIsGenerationError(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	h.generator.err = errors.New("llm down")
	_, err := h.lifecycle.CreateSession(context.Background(), "user-1", domain.Resume{}, "")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if _, err := h.lifecycle.CreateSession(context.Background(), "user-1", domain.Resume{}, "Chef"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestNextQuestionSkipsAnsweredAndEndsWithSentinel(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	session, questions := h.readySession(t, "A?", "B?", "C?")
	ctx := context.Background()

	// answer out of order: the second question first
	if _, err := h.lifecycle.SubmitAnswer(ctx, "user-1", questions[1].ID, AnswerSubmission{Transcript: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, want := range []string{"A?", "C?"} {
		q, ok, err := h.lifecycle.NextQuestion(ctx, "user-1", session.ID)
		if err != nil || !ok {
			t.Fatalf("next question: ok=%v err=%v", ok, err)
		}
		if q.Text != want {
			t.Fatalf("expected %q, got %q", want, q.Text)
		}
		if _, err := h.lifecycle.SubmitAnswer(ctx, "user-1", q.ID, AnswerSubmission{Transcript: "x"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	q, ok, err := h.lifecycle.NextQuestion(ctx, "user-1", session.ID)
	if err != nil || ok || q.ID != "" {
		t.Fatalf("expected none-remaining sentinel, got q=%+v ok=%v err=%v", q, ok, err)
	}
	reloaded, _ := h.lifecycle.GetSession(ctx, "user-1", session.ID)
	if reloaded.State != domain.SessionAnswersInProgress {
		t.Fatalf("expected answers_in_progress, got %s", reloaded.State)
	}
}

func TestSubmitAnswerRequiresContent(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	session, questions := h.readySession(t, "A?")

	_, err := h.lifecycle.SubmitAnswer(context.Background(), "user-1", questions[0].ID, AnswerSubmission{Transcript: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "answer" {
		t.Fatalf("expected answer validation error, got %v", err)
	}
	answers, _ := h.store.ListAnswersBySession(session.ID)
	if len(answers) != 0 {
		t.Fatalf("expected no answer rows, got %d", len(answers))
	}
}

func TestSubmitAnswerChecksOwnership(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	_, questions := h.readySession(t, "A?")
	ctx := context.Background()

	if _, err := h.lifecycle.SubmitAnswer(ctx, "intruder", questions[0].ID, AnswerSubmission{Transcript: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign question, got %v", err)
	}
	if _, err := h.lifecycle.SubmitAnswer(ctx, "user-1", "missing", AnswerSubmission{Transcript: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing question, got %v", err)
	}
}

func TestSubmitAnswerReturnsBeforeAnalysis(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	_, questions := h.readySession(t, "A?")

	answer, err := h.lifecycle.SubmitAnswer(context.Background(), "user-1", questions[0].ID, audioSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if answer.AnalysisStatus != domain.AnalysisPending || answer.AudioKey == "" {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if h.transcribe.calls.Load() != 0 || h.analyzer.calls.Load() != 0 {
		t.Fatalf("analysis must not run on the request path")
	}
}

func TestCloseSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	session, questions := h.readySession(t, "A?")
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.lifecycle.now = func() time.Time { return first }
	closed, err := h.lifecycle.CloseSession(ctx, "user-1", session.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.EndedAt == nil || !closed.EndedAt.Equal(first) {
		t.Fatalf("unexpected ended at %v", closed.EndedAt)
	}

	h.lifecycle.now = func() time.Time { return first.Add(time.Hour) }
	again, err := h.lifecycle.CloseSession(ctx, "user-1", session.ID)
	if err != nil {
		t.Fatalf("close again: %v", err)
	}
	if !again.EndedAt.Equal(first) {
		t.Fatalf("end timestamp changed: %v", again.EndedAt)
	}
	if _, err := h.lifecycle.SubmitAnswer(ctx, "user-1", questions[0].ID, AnswerSubmission{Transcript: "late"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := h.lifecycle.CloseSession(ctx, "intruder", session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}
}

func TestUploadResumeOpensSession(t *testing.T) {
	h := newHarness(t, time.Second, 3)
	ctx := context.Background()
	if err := h.store.SaveProfile(domain.Profile{UserID: "user-1", PreferredRole: domain.JobRoleDevOps}); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	resume, session, err := h.lifecycle.UploadResume(ctx, "user-1", "cv.txt", []byte("Jane Doe\nDevOps Engineer"), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resume.StorageKey == "" || session.ResumeID != resume.ID {
		t.Fatalf("unexpected resume/session: %+v %+v", resume, session)
	}
	if session.TargetRole != domain.JobRoleDevOps || session.State != domain.SessionCreated {
		t.Fatalf("expected profile role and created state, got %+v", session)
	}
	if _, _, err := h.lifecycle.UploadResume(ctx, "user-1", "cv.txt", nil, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty file, got %v", err)
	}

	_, questions, err := h.lifecycle.GenerateQuestions(ctx, "user-1", session.ID)
	if err != nil || len(questions) != 3 {
		t.Fatalf("start session: %d questions, err=%v", len(questions), err)
	}

	history, err := h.lifecycle.ListSessions(ctx, "user-1")
	if err != nil || len(history) != 1 || history[0].ID != session.ID {
		t.Fatalf("unexpected history %+v err=%v", history, err)
	}
}

func TestRetryAnalysisResetsFailedAnswer(t *testing.T) {
	h := newHarness(t, time.Second, 1)
	h.transcribe.failures = 1
	_, questions := h.readySession(t, "A?")
	ctx := context.Background()
	h.startWorkers(t)

	answer, err := h.lifecycle.SubmitAnswer(ctx, "user-1", questions[0].ID, audioSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "analysis failure", func() bool {
		return h.answerStatus(t, answer.ID).AnalysisStatus == domain.AnalysisFailed
	})

	if _, err := h.lifecycle.RetryAnalysis(ctx, "user-1", answer.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitFor(t, "analysis success", func() bool {
		return h.answerStatus(t, answer.ID).AnalysisStatus == domain.AnalysisDone
	})
	if _, err := h.lifecycle.RetryAnalysis(ctx, "user-1", answer.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for analyzed answer, got %v", err)
	}
	status, err := h.lifecycle.AnswerStatus(ctx, "user-1", answer.ID)
	if err != nil || status.Analysis == nil || status.Answer.FailureReason != "" {
		t.Fatalf("unexpected status %+v err=%v", status, err)
	}
}
