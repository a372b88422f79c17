package interview

import (
	"context"
	"io"

	"mockinterview/pkg/domain"
)

// ResumeParser extracts structured fields from an uploaded file. It never
// fails: unreadable input yields empty fields.
type ResumeParser interface {
	Parse(ctx context.Context, filename string, data []byte) domain.ResumeFields
}

// QuestionGenerator returns question texts in the order they should be asked.
// An empty result is valid.
type QuestionGenerator interface {
	Generate(ctx context.Context, fields domain.ResumeFields, role domain.JobRole) ([]string, error)
}

// Transcriber turns recorded audio into ordered timestamped segments.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) ([]domain.Segment, error)
}

// ResponseAnalyzer scores an answer. It must fail when its output cannot be
// read as the four scores.
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, segments []domain.Segment, question string) (domain.ResponseScores, error)
}
