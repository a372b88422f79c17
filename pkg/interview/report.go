package interview

import (
	"context"
	"fmt"
	"time"

	"mockinterview/pkg/domain"
	"mockinterview/pkg/store"
)

const (
	suggestionThreshold = 0.7
	defaultSuggestion   = "Great job! Keep it up."
)

// Report is the scored view of one session, computed from persisted state.
type Report struct {
	SessionID       string        `json:"sessionId"`
	Role            string        `json:"role"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         *time.Time    `json:"endedAt"`
	Questions       []ReportEntry `json:"questions"`
	TotalQuestions  int           `json:"totalQuestions"`
	AnalyzedCount   int           `json:"analyzedCount"`
	FailedCount     int           `json:"failedCount"`
	PendingCount    int           `json:"pendingCount"`
	UnansweredCount int           `json:"unansweredCount"`
	OverallScore    float64       `json:"overallScore"`
	Suggestions     []string      `json:"suggestions"`
}

type ReportEntry struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	AnswerID   string   `json:"answerId"`
	Transcript *string  `json:"transcript"`
	Tone       string   `json:"tone"`
	Speed      string   `json:"speed"`
	PaceWPM    *float64 `json:"paceWpm"`
	Fluency    string   `json:"fluency"`
	Relevance  float64  `json:"relevance"`
}

// Complete reports whether every question has an answer whose analysis has
// finished or permanently failed.
func (r Report) Complete() bool {
	return r.TotalQuestions > 0 && r.UnansweredCount == 0 && r.PendingCount == 0
}

// Reporter builds reports from the store. It never writes.
type Reporter struct {
	store store.Store
}

func NewReporter(st store.Store) *Reporter {
	return &Reporter{store: st}
}

// BuildReport loads the session owned by userID and aggregates it.
func (r *Reporter) BuildReport(_ context.Context, userID, sessionID string) (Report, error) {
	session, err := ownedSession(r.store, userID, sessionID)
	if err != nil {
		return Report{}, err
	}
	return r.build(session)
}

func (r *Reporter) build(session domain.Session) (Report, error) {
	questions, err := r.store.ListQuestions(session.ID)
	if err != nil {
		return Report{}, fmt.Errorf("list questions: %w", err)
	}
	answers, err := r.store.ListAnswersBySession(session.ID)
	if err != nil {
		return Report{}, fmt.Errorf("list answers: %w", err)
	}
	analyses, err := r.store.ListAnalysesBySession(session.ID)
	if err != nil {
		return Report{}, fmt.Errorf("list analyses: %w", err)
	}
	return Aggregate(session, questions, answers, analyses), nil
}

// Aggregate is the pure report computation. Questions keep creation order;
// only the active answer of each question counts and only analyzed answers
// get an entry.
func Aggregate(session domain.Session, questions []domain.Question, answers []domain.Answer, analyses []domain.AnalysisResult) Report {
	active := ActiveAnswers(answers)
	results := make(map[string]domain.AnalysisResult, len(analyses))
	for _, a := range analyses {
		results[a.AnswerID] = a
	}

	report := Report{
		SessionID:      session.ID,
		Role:           roleLabel(session.TargetRole),
		StartedAt:      session.StartedAt,
		EndedAt:        session.EndedAt,
		Questions:      make([]ReportEntry, 0, len(questions)),
		TotalQuestions: len(questions),
		Suggestions:    make([]string, 0),
	}
	var sum float64
	for _, q := range questions {
		answer, ok := active[q.ID]
		if !ok {
			report.UnansweredCount++
			continue
		}
		result, analyzed := results[answer.ID]
		switch {
		case answer.AnalysisStatus == domain.AnalysisDone && analyzed:
		case answer.AnalysisStatus == domain.AnalysisFailed:
			report.FailedCount++
			continue
		default:
			report.PendingCount++
			continue
		}
		report.AnalyzedCount++
		sum += result.Relevance
		entry := ReportEntry{
			QuestionID: q.ID,
			Text:       q.Text,
			AnswerID:   answer.ID,
			Tone:       result.Tone,
			Speed:      result.Speed,
			PaceWPM:    result.PaceWPM,
			Fluency:    result.Fluency,
			Relevance:  result.Relevance,
		}
		if answer.Transcript != "" {
			transcript := answer.Transcript
			entry.Transcript = &transcript
		}
		report.Questions = append(report.Questions, entry)
		if result.Relevance < suggestionThreshold {
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("Question '%s...' could use more relevance.", prefixRunes(q.Text, 30)))
		}
	}
	if report.AnalyzedCount > 0 {
		report.OverallScore = sum / float64(report.AnalyzedCount)
	}
	if len(report.Suggestions) == 0 {
		report.Suggestions = append(report.Suggestions, defaultSuggestion)
	}
	return report
}

// ActiveAnswers picks the answer that counts for each question: the latest
// responded_at wins, and on a tie the one listed last.
func ActiveAnswers(answers []domain.Answer) map[string]domain.Answer {
	active := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		prev, ok := active[a.QuestionID]
		if !ok || !a.RespondedAt.Before(prev.RespondedAt) {
			active[a.QuestionID] = a
		}
	}
	return active
}

func roleLabel(role domain.JobRole) string {
	if label := role.Label(); label != "" {
		return label
	}
	return "Unknown"
}
