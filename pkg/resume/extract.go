package resume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"golang.org/x/net/html"
)

// ErrUnsupported is returned for file types the extractor cannot read.
var ErrUnsupported = errors.New("unsupported resume format")

// ExtractText returns the plain text of a résumé, one logical line per
// paragraph. The format is chosen by file extension.
func ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(ctx, data)
	case ".docx":
		return extractDOCX(data)
	case ".html", ".htm":
		return extractHTML(data)
	case ".txt", ".md", "":
		return normalizeLines(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func extractPDF(ctx context.Context, data []byte) (string, error) {
	// pdftotext keeps the layout of multi-column résumés better
	if text, err := extractPDFWithPdftotext(ctx, data); err == nil && text != "" {
		return text, nil
	}
	return extractPDFWithGoLib(data)
}

func extractPDFWithPdftotext(ctx context.Context, data []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	text := normalizeLines(string(output))
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return text, nil
}

func extractPDFWithGoLib(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip problematic pages instead of failing entirely
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	text := normalizeLines(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return text, nil
}

func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()
	return stripMarkup(doc.Editable().GetContent(), map[string]bool{"w:p": true, "w:br": true, "w:tab": false}), nil
}

func extractHTML(data []byte) (string, error) {
	return stripMarkup(string(data), map[string]bool{
		"p": true, "br": true, "div": true, "li": true, "tr": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}), nil
}

// stripMarkup walks an HTML or WordprocessingML document with the x/net/html
// tokenizer and keeps text. Tags in breaks emit a newline when true and a
// space when false.
func stripMarkup(markup string, breaks map[string]bool) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var sb strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeLines(sb.String())
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			newline, ok := breaks[tag]
			if !ok {
				continue
			}
			if newline && (tt != html.StartTagToken || tag == "br" || tag == "w:br") {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
	}
}

// normalizeLines trims every line, collapses inner whitespace and drops
// empty lines.
func normalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
