package store

import (
	"errors"
	"time"

	"mockinterview/pkg/domain"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for the interview pipeline.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	SaveProfile(domain.Profile) error
	GetProfile(userID string) (domain.Profile, bool, error)

	// resumes
	SaveResume(domain.Resume) error
	GetResume(id string) (domain.Resume, bool, error)

	// sessions
	SaveSession(domain.Session) error
	GetSession(id string) (domain.Session, bool, error)
	ListSessionsByUser(userID string) ([]domain.Session, error)
	// AdvanceSessionState moves a session from one state to another and
	// reports whether the transition happened.
	AdvanceSessionState(id string, from, to domain.SessionState) (bool, error)
	// CloseSession sets ended_at once and returns the stored session.
	CloseSession(id string, at time.Time) (domain.Session, error)

	// questions
	// InsertQuestions stores the batch only when the session has no questions
	// yet and moves it to questions_ready in the same transaction. It reports
	// whether the batch was inserted.
	InsertQuestions(sessionID string, questions []domain.Question) (bool, error)
	ListQuestions(sessionID string) ([]domain.Question, error)
	GetQuestion(id string) (domain.Question, bool, error)
	NextUnanswered(sessionID string) (domain.Question, bool, error)

	// answers
	SaveAnswer(domain.Answer) error
	GetAnswer(id string) (domain.Answer, bool, error)
	ListAnswersBySession(sessionID string) ([]domain.Answer, error)
	SetAnalysisStatus(answerID string, status domain.AnalysisStatus, reason string, attempts int) error
	// SetTranscript stores the text and timed segments of a transcribed recording.
	SetTranscript(answerID, transcript string, segments []domain.Segment) error

	// analyses
	// ReplaceAnalysis writes the result and marks the answer done atomically.
	ReplaceAnalysis(domain.AnalysisResult) error
	GetAnalysis(answerID string) (domain.AnalysisResult, bool, error)
	ListAnalysesBySession(sessionID string) ([]domain.AnalysisResult, error)

	// notifications
	// CreateNotification inserts n unless a row with the same event key exists.
	CreateNotification(n domain.Notification) (bool, error)
	ListNotifications(userID string) ([]domain.Notification, error)
	MarkNotificationRead(id, userID string) (bool, error)
}
