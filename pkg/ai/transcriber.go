package ai

import (
	"context"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"mockinterview/pkg/domain"
)

// WhisperTranscriber sends audio to an OpenAI-compatible
// /audio/transcriptions endpoint and returns timestamped segments.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperTranscriber builds a transcriber; an empty model selects whisper-1.
func NewWhisperTranscriber(baseURL, apiKey, model, language string) *WhisperTranscriber {
	model = strings.TrimSpace(model)
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client:   newOpenAIClient(baseURL, apiKey, 5*time.Minute),
		model:    model,
		language: strings.TrimSpace(language),
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) ([]domain.Segment, error) {
	if strings.TrimSpace(filename) == "" {
		filename = "answer.webm"
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: t.language,
	})
	if err != nil {
		return nil, wrapOpenAIError("whisper", err)
	}
	segments := make([]domain.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		segments = append(segments, domain.Segment{Start: 0, End: resp.Duration, Text: strings.TrimSpace(resp.Text)})
	}
	return segments, nil
}

// TranscriptText joins segment texts into one transcript.
func TranscriptText(segments []domain.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
