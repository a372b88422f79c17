// Package interview sequences mock-interview sessions: question generation,
// answer submission, background analysis and reporting.
package interview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"mockinterview/internal/util"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/queue"
	"mockinterview/pkg/storage"
	"mockinterview/pkg/store"
)

// AnalysisScheduler schedules background analysis of an answer.
type AnalysisScheduler interface {
	Dispatch(ctx context.Context, answerID string) (queue.Job, error)
}

type LifecycleConfig struct {
	Store      store.Store
	Objects    storage.ObjectStore
	Parser     ResumeParser
	Generator  QuestionGenerator
	Dispatcher AnalysisScheduler
	// CallTimeout bounds each question generation call.
	CallTimeout time.Duration
}

// Lifecycle owns session, question and answer state on the request path.
// None of its operations wait for analysis.
type Lifecycle struct {
	store       store.Store
	objects     storage.ObjectStore
	parser      ResumeParser
	generator   QuestionGenerator
	dispatcher  AnalysisScheduler
	callTimeout time.Duration
	generation  singleflight.Group
	now         func() time.Time
}

func NewLifecycle(cfg LifecycleConfig) (*Lifecycle, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("question generator required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	return &Lifecycle{
		store:       cfg.Store,
		objects:     cfg.Objects,
		parser:      cfg.Parser,
		generator:   cfg.Generator,
		dispatcher:  cfg.Dispatcher,
		callTimeout: cfg.CallTimeout,
		now:         time.Now,
	}, nil
}

// UploadResume stores the file, parses it best-effort and opens a session
// for it. Questions are generated later by GenerateQuestions.
func (l *Lifecycle) UploadResume(ctx context.Context, userID, filename string, data []byte, targetRole domain.JobRole) (domain.Resume, domain.Session, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.Resume{}, domain.Session{}, invalid("file", "filename required")
	}
	if len(data) == 0 {
		return domain.Resume{}, domain.Session{}, invalid("file", "file is empty")
	}
	role, err := l.resolveRole(userID, targetRole)
	if err != nil {
		return domain.Resume{}, domain.Session{}, err
	}
	now := l.now().UTC()
	resume := domain.Resume{
		ID:               util.NewID(),
		OwnerID:          userID,
		OriginalFilename: filename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if l.objects != nil {
		key := storage.ObjectKey("resumes", userID, resume.ID, filename)
		if err := l.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ""); err != nil {
			return domain.Resume{}, domain.Session{}, fmt.Errorf("store resume: %w", err)
		}
		resume.StorageKey = key
	}
	if l.parser != nil {
		resume.Fields = l.parser.Parse(ctx, filename, data)
	}
	if err := l.store.SaveResume(resume); err != nil {
		return domain.Resume{}, domain.Session{}, fmt.Errorf("save resume: %w", err)
	}
	session, err := l.newSession(userID, resume.ID, role)
	if err != nil {
		return domain.Resume{}, domain.Session{}, err
	}
	util.LoggerFromContext(ctx).Info("resume uploaded",
		"resume_id", resume.ID,
		"session_id", session.ID,
		"fields_found", !resume.Fields.Empty(),
	)
	return resume, session, nil
}

// CreateSession opens a session for resume and generates its questions once.
// On ErrGeneration the session is still returned, in the created state.
func (l *Lifecycle) CreateSession(ctx context.Context, userID string, resume domain.Resume, targetRole domain.JobRole) (domain.Session, error) {
	role, err := l.resolveRole(userID, targetRole)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := l.newSession(userID, resume.ID, role)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := l.generate(ctx, session, resume.Fields); err != nil {
		return session, err
	}
	return l.reloadSession(session.ID)
}

// GenerateQuestions (re)runs generation for a session that has none yet.
// A session that already has questions is returned unchanged. Concurrent
// calls for one session share a single generator call.
func (l *Lifecycle) GenerateQuestions(ctx context.Context, userID, sessionID string) (domain.Session, []domain.Question, error) {
	session, err := ownedSession(l.store, userID, sessionID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	existing, err := l.store.ListQuestions(session.ID)
	if err != nil {
		return domain.Session{}, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(existing) > 0 {
		return session, existing, nil
	}
	if session.EndedAt != nil {
		return domain.Session{}, nil, ErrSessionClosed
	}

	v, err, _ := l.generation.Do(session.ID, func() (any, error) {
		var fields domain.ResumeFields
		if session.ResumeID != "" {
			resume, ok, err := l.store.GetResume(session.ResumeID)
			if err != nil {
				return nil, fmt.Errorf("load resume: %w", err)
			}
			if ok {
				fields = resume.Fields
			}
		}
		return l.generate(ctx, session, fields)
	})
	if err != nil {
		return session, nil, err
	}
	session, err = l.reloadSession(session.ID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	return session, v.([]domain.Question), nil
}

// generate calls the generator and stores the batch unless another caller
// stored one first. It returns the session's questions either way.
func (l *Lifecycle) generate(ctx context.Context, session domain.Session, fields domain.ResumeFields) ([]domain.Question, error) {
	logger := util.LoggerFromContext(ctx).With("session_id", session.ID)
	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	texts, err := l.generator.Generate(callCtx, fields, session.TargetRole)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		logger.Warn("question generation failed", "err", err, "timeout", timedOut)
		if timedOut {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	base := l.now().UTC()
	questions := make([]domain.Question, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		pos := len(questions)
		questions = append(questions, domain.Question{
			ID:        util.NewID(),
			SessionID: session.ID,
			Position:  pos,
			Text:      text,
			// creation order is position order even at coarse clock resolution
			CreatedAt: base.Add(time.Duration(pos) * time.Microsecond),
		})
	}
	if len(questions) == 0 {
		logger.Warn("question generator returned no usable questions")
		return nil, fmt.Errorf("%w: generator returned no usable questions", ErrGeneration)
	}
	inserted, err := l.store.InsertQuestions(session.ID, questions)
	if err != nil {
		return nil, fmt.Errorf("insert questions: %w", err)
	}
	if !inserted {
		return l.store.ListQuestions(session.ID)
	}
	logger.Info("questions generated", "count", len(questions))
	return questions, nil
}

// NextQuestion returns the earliest question without an answer. When every
// question is answered it returns ok=false and no error.
func (l *Lifecycle) NextQuestion(_ context.Context, userID, sessionID string) (domain.Question, bool, error) {
	session, err := ownedSession(l.store, userID, sessionID)
	if err != nil {
		return domain.Question{}, false, err
	}
	if session.State == domain.SessionCreated {
		return domain.Question{}, false, ErrQuestionsNotReady
	}
	q, ok, err := l.store.NextUnanswered(session.ID)
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("next question: %w", err)
	}
	return q, ok, nil
}

// SessionQuestions lists a session's questions in creation order.
func (l *Lifecycle) SessionQuestions(_ context.Context, userID, sessionID string) ([]domain.Question, error) {
	session, err := ownedSession(l.store, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return l.store.ListQuestions(session.ID)
}

// AnswerSubmission carries a typed transcript, recorded audio, or both.
type AnswerSubmission struct {
	Transcript    string
	Audio         io.Reader
	AudioSize     int64
	AudioFilename string
	ContentType   string
}

// SubmitAnswer records an answer and schedules its analysis without waiting
// for it. Scheduling problems are logged; the answer stays pending and can be
// re-dispatched with RetryAnalysis.
func (l *Lifecycle) SubmitAnswer(ctx context.Context, userID, questionID string, sub AnswerSubmission) (domain.Answer, error) {
	question, ok, err := l.store.GetQuestion(questionID)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load question: %w", err)
	}
	if !ok {
		return domain.Answer{}, fmt.Errorf("%w: question %s", ErrNotFound, questionID)
	}
	session, err := ownedSession(l.store, userID, question.SessionID)
	if err != nil {
		// another user's question is reported as missing
		return domain.Answer{}, fmt.Errorf("%w: question %s", ErrNotFound, questionID)
	}
	transcript := strings.TrimSpace(sub.Transcript)
	hasAudio := sub.Audio != nil && sub.AudioSize != 0
	if transcript == "" && !hasAudio {
		return domain.Answer{}, invalid("answer", "transcript or audio required")
	}
	if session.EndedAt != nil {
		return domain.Answer{}, ErrSessionClosed
	}

	now := l.now().UTC()
	answer := domain.Answer{
		ID:             util.NewID(),
		QuestionID:     question.ID,
		SessionID:      session.ID,
		UserID:         userID,
		Transcript:     transcript,
		AnalysisStatus: domain.AnalysisPending,
		RespondedAt:    now,
		UpdatedAt:      now,
	}
	if hasAudio {
		if l.objects == nil {
			return domain.Answer{}, errors.New("audio storage not configured")
		}
		filename := strings.TrimSpace(sub.AudioFilename)
		if filename == "" {
			filename = "answer.webm"
		}
		key := storage.ObjectKey("audio", userID, answer.ID, filename)
		if err := l.objects.Put(ctx, key, sub.Audio, sub.AudioSize, sub.ContentType); err != nil {
			return domain.Answer{}, fmt.Errorf("store audio: %w", err)
		}
		answer.AudioKey = key
		answer.AudioFilename = filename
	}
	if err := l.store.SaveAnswer(answer); err != nil {
		return domain.Answer{}, fmt.Errorf("save answer: %w", err)
	}
	if _, err := l.store.AdvanceSessionState(session.ID, domain.SessionQuestionsReady, domain.SessionAnswersInProgress); err != nil {
		return domain.Answer{}, fmt.Errorf("advance session: %w", err)
	}

	logger := util.LoggerFromContext(ctx).With("answer_id", answer.ID, "session_id", session.ID)
	job, err := l.dispatcher.Dispatch(ctx, answer.ID)
	if err != nil {
		logger.Error("dispatch analysis failed", "err", err)
		return answer, nil
	}
	logger.Info("answer submitted", "job_id", job.ID, "has_audio", hasAudio)
	return answer, nil
}

// RetryAnalysis explicitly re-dispatches an answer whose analysis failed or
// never got scheduled. Answers already analyzed are left alone.
func (l *Lifecycle) RetryAnalysis(ctx context.Context, userID, answerID string) (queue.Job, error) {
	answer, err := l.ownedAnswer(userID, answerID)
	if err != nil {
		return queue.Job{}, err
	}
	if answer.AnalysisStatus == domain.AnalysisDone {
		return queue.Job{}, invalid("answer", "answer is already analyzed")
	}
	if answer.AnalysisStatus == domain.AnalysisFailed {
		if err := l.store.SetAnalysisStatus(answer.ID, domain.AnalysisPending, "", 0); err != nil {
			return queue.Job{}, fmt.Errorf("reset answer: %w", err)
		}
	}
	return l.dispatcher.Dispatch(ctx, answer.ID)
}

// AnswerStatus is an answer with its analysis, when one exists.
type AnswerStatus struct {
	Answer   domain.Answer          `json:"answer"`
	Analysis *domain.AnalysisResult `json:"analysis"`
}

func (l *Lifecycle) AnswerStatus(_ context.Context, userID, answerID string) (AnswerStatus, error) {
	answer, err := l.ownedAnswer(userID, answerID)
	if err != nil {
		return AnswerStatus{}, err
	}
	status := AnswerStatus{Answer: answer}
	result, ok, err := l.store.GetAnalysis(answer.ID)
	if err != nil {
		return AnswerStatus{}, fmt.Errorf("load analysis: %w", err)
	}
	if ok {
		status.Analysis = &result
	}
	return status, nil
}

// CloseSession stamps the end time on the first call; later calls return the
// session unchanged. In-flight analysis keeps running.
func (l *Lifecycle) CloseSession(_ context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := ownedSession(l.store, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.EndedAt != nil {
		return session, nil
	}
	closed, err := l.store.CloseSession(session.ID, l.now())
	if err != nil {
		return domain.Session{}, fmt.Errorf("close session: %w", err)
	}
	return closed, nil
}

// ListSessions returns the user's interview history, newest first.
func (l *Lifecycle) ListSessions(_ context.Context, userID string) ([]domain.Session, error) {
	return l.store.ListSessionsByUser(userID)
}

func (l *Lifecycle) GetSession(_ context.Context, userID, sessionID string) (domain.Session, error) {
	return ownedSession(l.store, userID, sessionID)
}

func (l *Lifecycle) newSession(userID, resumeID string, role domain.JobRole) (domain.Session, error) {
	session := domain.Session{
		ID:         util.NewID(),
		UserID:     userID,
		ResumeID:   resumeID,
		TargetRole: role,
		State:      domain.SessionCreated,
		StartedAt:  l.now().UTC(),
	}
	if err := l.store.SaveSession(session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (l *Lifecycle) reloadSession(id string) (domain.Session, error) {
	session, ok, err := l.store.GetSession(id)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session, nil
}

// resolveRole falls back to the profile's preferred role, then SDE.
func (l *Lifecycle) resolveRole(userID string, role domain.JobRole) (domain.JobRole, error) {
	if role != "" {
		if !role.Valid() {
			return "", invalid("role", fmt.Sprintf("unknown role %q", role))
		}
		return role, nil
	}
	profile, ok, err := l.store.GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if ok && profile.PreferredRole.Valid() {
		return profile.PreferredRole, nil
	}
	return domain.JobRoleSDE, nil
}

func (l *Lifecycle) ownedAnswer(userID, answerID string) (domain.Answer, error) {
	answer, ok, err := l.store.GetAnswer(answerID)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load answer: %w", err)
	}
	if !ok || answer.UserID != userID {
		return domain.Answer{}, fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
	}
	return answer, nil
}

func ownedSession(st store.Store, userID, sessionID string) (domain.Session, error) {
	session, ok, err := st.GetSession(sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.UserID != userID {
		return domain.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return session, nil
}
