package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mockinterview/pkg/domain"
)

const defaultQuestionCount = 10

const questionSystemPrompt = "You are an experienced interviewer preparing a mock interview. " +
	"Reply with the questions only, one per line, each prefixed with its number."

var numberedLine = regexp.MustCompile(`^\s*(?:\d{1,2}\s*[.):\-]|[-*•])\s*(.+)$`)

// QuestionGenerator turns résumé fields and a target role into interview questions.
type QuestionGenerator struct {
	gen   TextGenerator
	count int
}

func NewQuestionGenerator(gen TextGenerator, count int) *QuestionGenerator {
	if count <= 0 {
		count = defaultQuestionCount
	}
	return &QuestionGenerator{gen: gen, count: count}
}

// Generate returns up to count questions in generation order. An empty slice
// with a nil error means the model produced nothing usable.
func (g *QuestionGenerator) Generate(ctx context.Context, fields domain.ResumeFields, role domain.JobRole) ([]string, error) {
	raw, err := g.gen.GenerateText(ctx, questionSystemPrompt, buildQuestionPrompt(fields, role, g.count))
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	questions := ParseQuestions(raw)
	if len(questions) > g.count {
		questions = questions[:g.count]
	}
	return questions, nil
}

func buildQuestionPrompt(fields domain.ResumeFields, role domain.JobRole, count int) string {
	roleText := role.Label()
	if roleText == "" {
		roleText = string(role)
	}
	var sb strings.Builder
	sb.WriteString("Resume:\n")
	fmt.Fprintf(&sb, "Name: %s\n", fields.Name)
	fmt.Fprintf(&sb, "Role: %s\n", fields.Role)
	fmt.Fprintf(&sb, "Skills: %s\n", fields.Skills)
	fmt.Fprintf(&sb, "Experience: %s\n", fields.Experience)
	fmt.Fprintf(&sb, "Education: %s\n\n", fields.Education)
	sb.WriteString("Instructions:\n")
	fmt.Fprintf(&sb, "Generate %d smart, in-depth interview questions that mix technical and HR-style probing, based on the resume and given job role %q.\n", count, roleText)
	sb.WriteString("Questions:")
	return sb.String()
}

// ParseQuestions extracts question lines from model output. Numbered or
// bulleted lines win; without any, lines ending in "?" are used.
func ParseQuestions(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var numbered, asked []string
	seen := make(map[string]struct{})
	add := func(list *[]string, text string) {
		text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"*`))
		if text == "" {
			return
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		*list = append(*list, text)
	}
	for _, line := range lines {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			add(&numbered, m[1])
		}
	}
	if len(numbered) > 0 {
		return numbered
	}
	for _, line := range lines {
		if strings.HasSuffix(strings.TrimSpace(line), "?") {
			add(&asked, line)
		}
	}
	return asked
}
