// Package resume extracts structured fields from uploaded résumés.
package resume

import (
	"context"
	"log/slog"

	"mockinterview/pkg/domain"
)

// Parser reads PDF, DOCX, HTML and plain-text résumés. Parse never fails:
// unreadable input yields empty fields and a warning log.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) Parse(ctx context.Context, filename string, data []byte) (fields domain.ResumeFields) {
	defer func() {
		// the PDF reader panics on some malformed files
		if r := recover(); r != nil {
			p.logger.Warn("resume parse panic", "filename", filename, "panic", r)
			fields = domain.ResumeFields{}
		}
	}()
	text, err := ExtractText(ctx, filename, data)
	if err != nil {
		p.logger.Warn("resume text extraction failed", "filename", filename, "err", err)
		return domain.ResumeFields{}
	}
	fields = ExtractFields(text)
	if fields.Empty() {
		p.logger.Info("resume yielded no fields", "filename", filename, "chars", len(text))
	}
	return fields
}
