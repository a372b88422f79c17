package store

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"mockinterview/pkg/domain"
)

func newMockGormStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return &GormStore{db: db}, mock
}

func expectLockedSession(mock sqlmock.Sqlmock, sessionID string) {
	mock.ExpectQuery(`SELECT \* FROM "session_models" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state"}).AddRow(sessionID, string(domain.SessionCreated)))
}

func TestGormInsertQuestionsWritesOnce(t *testing.T) {
	s, mock := newMockGormStore(t)
	now := time.Now().UTC()
	questions := []domain.Question{
		{ID: "q1", Position: 0, Text: "Why Go?", CreatedAt: now},
		{ID: "q2", Position: 1, Text: "Describe a hard bug.", CreatedAt: now},
	}

	mock.ExpectBegin()
	expectLockedSession(mock, "s1")
	mock.ExpectQuery(`SELECT count\(\*\) FROM "question_models" WHERE session_id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO "question_models"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE "session_models" SET "state"=\$1 WHERE id = \$2 AND state = \$3`).
		WithArgs(string(domain.SessionQuestionsReady), "s1", string(domain.SessionCreated)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := s.InsertQuestions("s1", questions)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	mock.ExpectBegin()
	expectLockedSession(mock, "s1")
	mock.ExpectQuery(`SELECT count\(\*\) FROM "question_models"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	inserted, err = s.InsertQuestions("s1", questions)
	if err != nil || inserted {
		t.Fatalf("second insert must be a no-op: inserted=%v err=%v", inserted, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormInsertQuestionsUnknownSession(t *testing.T) {
	s, mock := newMockGormStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "session_models"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state"}))
	mock.ExpectRollback()

	if _, err := s.InsertQuestions("missing", []domain.Question{{ID: "q1", Text: "A?"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReplaceAnalysisCommitsResultWithStatus(t *testing.T) {
	s, mock := newMockGormStore(t)
	pace := 120.0

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "answer_models" SET .*"analysis_status"=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "analysis_models" .* ON CONFLICT \("answer_id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ReplaceAnalysis(domain.AnalysisResult{
		AnswerID:   "a1",
		Tone:       "confident",
		Speed:      "moderate",
		Fluency:    "clear",
		Relevance:  0.8,
		PaceWPM:    &pace,
		AnalyzedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("replace analysis: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReplaceAnalysisRollsBackOnWriteFailure(t *testing.T) {
	s, mock := newMockGormStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "answer_models"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "analysis_models"`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := s.ReplaceAnalysis(domain.AnalysisResult{AnswerID: "a1", AnalyzedAt: time.Now().UTC()}); err == nil {
		t.Fatalf("expected write failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("status update must roll back with the result: %v", err)
	}
}

func TestGormReplaceAnalysisUnknownAnswer(t *testing.T) {
	s, mock := newMockGormStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "answer_models"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.ReplaceAnalysis(domain.AnalysisResult{AnswerID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormSetTranscriptStoresSegments(t *testing.T) {
	s, mock := newMockGormStore(t)

	mock.ExpectExec(`UPDATE "answer_models" SET .*"segments"=\$\d.*"transcript"=\$\d`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	segments := []domain.Segment{{Start: 0, End: 1.5, Text: "I like Go"}}
	if err := s.SetTranscript("a1", "I like Go", segments); err != nil {
		t.Fatalf("set transcript: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	m := answerToModel(domain.Answer{ID: "a1", Segments: segments})
	if got := answerFromModel(m).Segments; len(got) != 1 || got[0].End != 1.5 {
		t.Fatalf("segments lost in model mapping: %+v", got)
	}
}
