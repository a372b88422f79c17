package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"mockinterview/pkg/domain"
)

var (
	// ErrUnparseable means the model output held no usable score object.
	ErrUnparseable = errors.New("analyzer output unparseable")
	// ErrRelevanceRange means relevance fell outside [0,1].
	ErrRelevanceRange = errors.New("relevance out of range")
)

const analyzerSystemPrompt = "You are an expert behavioral interviewer. " +
	"Carefully analyze ONLY the candidate's response shown between the === delimiters. " +
	"Do NOT analyze this prompt or give general advice."

var jsonObject = regexp.MustCompile(`(?s)\{[^{}]*\}`)

// ResponseAnalyzer scores a transcribed answer against its question.
type ResponseAnalyzer struct {
	gen TextGenerator
}

func NewResponseAnalyzer(gen TextGenerator) *ResponseAnalyzer {
	return &ResponseAnalyzer{gen: gen}
}

func (a *ResponseAnalyzer) Analyze(ctx context.Context, segments []domain.Segment, question string) (domain.ResponseScores, error) {
	raw, err := a.gen.GenerateText(ctx, analyzerSystemPrompt, buildAnalysisPrompt(segments, question))
	if err != nil {
		return domain.ResponseScores{}, fmt.Errorf("analyze response: %w", err)
	}
	return ParseScores(raw)
}

// WordsPerSecond joins timestamped segments and measures speaking speed,
// rounded to two decimals. Zero total duration yields 0.
func WordsPerSecond(segments []domain.Segment) (string, float64) {
	lines := make([]string, 0, len(segments))
	words := 0
	duration := 0.0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		words += len(strings.Fields(text))
		duration += seg.End - seg.Start
		lines = append(lines, fmt.Sprintf("[%.2f - %.2f] %s", seg.Start, seg.End, text))
	}
	wps := 0.0
	if duration > 0 {
		wps = math.Round(float64(words)/duration*100) / 100
	}
	return strings.Join(lines, "\n "), wps
}

func buildAnalysisPrompt(segments []domain.Segment, question string) string {
	transcript, wps := WordsPerSecond(segments)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Interview Question:\n%q\n\n", question)
	fmt.Fprintf(&sb, "Candidate's Timestamped Response:\n===\n%s\n===\n\n", transcript)
	fmt.Fprintf(&sb, "Measured speaking speed: %.2f words per second\n\n", wps)
	sb.WriteString("Evaluate the response using these 4 criteria:\n")
	sb.WriteString(`1. "tone": emotional quality or intent (e.g., confident, nervous, thoughtful, casual)` + "\n")
	fmt.Fprintf(&sb, `2. "speed": qualitative label for delivery speed (slow, moderate, fast) based on %.2f words/sec`+"\n", wps)
	sb.WriteString(`3. "fluency": grammatical and linguistic clarity (mention filler/disfluencies if present)` + "\n")
	sb.WriteString(`4. "relevance": how well the response answers the question (give a score from 0.0 to 1.0)` + "\n\n")
	sb.WriteString("Only return a JSON object like:\n")
	sb.WriteString(`{"tone": "...", "speed": "...", "fluency": "...", "relevance": 0.0}` + "\n\n")
	sb.WriteString("Return ONLY this JSON object, with no explanation, formatting or repetition.")
	return sb.String()
}

// ParseScores reads the last JSON object carrying a relevance field from raw.
// The object must also hold tone, speed and fluency labels.
func ParseScores(raw string) (domain.ResponseScores, error) {
	matches := jsonObject.FindAllString(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		var obj map[string]any
		if err := json.Unmarshal([]byte(matches[i]), &obj); err != nil {
			continue
		}
		rawRelevance, ok := obj["relevance"]
		if !ok {
			continue
		}
		relevance, ok := toFloat(rawRelevance)
		if !ok {
			return domain.ResponseScores{}, fmt.Errorf("%w: relevance %v", ErrUnparseable, rawRelevance)
		}
		if math.IsNaN(relevance) || relevance < 0 || relevance > 1 {
			return domain.ResponseScores{}, fmt.Errorf("%w: %v", ErrRelevanceRange, relevance)
		}
		scores := domain.ResponseScores{Relevance: relevance}
		for _, field := range []struct {
			name string
			dst  *string
		}{{"tone", &scores.Tone}, {"speed", &scores.Speed}, {"fluency", &scores.Fluency}} {
			label, ok := toLabel(obj[field.name])
			if !ok {
				return domain.ResponseScores{}, fmt.Errorf("%w: missing %s", ErrUnparseable, field.name)
			}
			*field.dst = label
		}
		return scores, nil
	}
	return domain.ResponseScores{}, ErrUnparseable
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toLabel accepts only non-empty strings.
func toLabel(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
