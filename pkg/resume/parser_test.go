package resume

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

const sampleText = `Jane Doe
Senior Backend Engineer
jane@example.com | +1 555 123 4567

Skills:
- Go
- PostgreSQL
- Kubernetes

Experience
Acme Corp, 2019-2023
Globex, 2017-2019

Education
B.Sc. Computer Science, State University
`

func TestExtractFieldsFromSections(t *testing.T) {
	fields := ExtractFields(normalizeLines(sampleText))
	if fields.Name != "Jane Doe" {
		t.Fatalf("unexpected name %q", fields.Name)
	}
	if fields.Role != "Senior Backend Engineer" {
		t.Fatalf("unexpected role %q", fields.Role)
	}
	if fields.Skills != "Go, PostgreSQL, Kubernetes" {
		t.Fatalf("unexpected skills %q", fields.Skills)
	}
	if fields.Experience != "Acme Corp, 2019-2023, Globex, 2017-2019" {
		t.Fatalf("unexpected experience %q", fields.Experience)
	}
	if !strings.Contains(fields.Education, "Computer Science") {
		t.Fatalf("unexpected education %q", fields.Education)
	}
}

func TestExtractFieldsLabelledLines(t *testing.T) {
	fields := ExtractFields("Name: Arjun Singh\nDesignation: Backend Developer\nSkills: Python, Django\nExperience: 2 years at Swiggy")
	if fields.Name != "Arjun Singh" || fields.Role != "Backend Developer" {
		t.Fatalf("unexpected name/role: %+v", fields)
	}
	if fields.Skills != "Python, Django" || fields.Experience != "2 years at Swiggy" {
		t.Fatalf("unexpected skills/experience: %+v", fields)
	}
}

func TestExtractFieldsEmptyText(t *testing.T) {
	if !ExtractFields("").Empty() {
		t.Fatalf("expected empty fields")
	}
}

func TestParserHTML(t *testing.T) {
	doc := `<html><head><style>p{color:red}</style></head><body>
<h1>John Smith</h1><p>QA Engineer</p>
<h2>Skills</h2><ul><li>Selenium</li><li>Cypress</li></ul>
<script>var x = "Education";</script>
</body></html>`
	fields := NewParser(nil).Parse(context.Background(), "cv.html", []byte(doc))
	if fields.Name != "John Smith" || fields.Role != "QA Engineer" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields.Skills != "Selenium, Cypress" {
		t.Fatalf("unexpected skills %q", fields.Skills)
	}
}

func TestParserDOCX(t *testing.T) {
	data := buildDocx(t, []string{"Maria Garcia", "Product Manager", "Education", "MBA, Business School"})
	fields := NewParser(nil).Parse(context.Background(), "cv.docx", data)
	if fields.Name != "Maria Garcia" || fields.Role != "Product Manager" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields.Education != "MBA, Business School" {
		t.Fatalf("unexpected education %q", fields.Education)
	}
}

func TestParserNeverFails(t *testing.T) {
	p := NewParser(nil)
	if !p.Parse(context.Background(), "cv.pdf", []byte("not a pdf")).Empty() {
		t.Fatalf("expected empty fields for a broken pdf")
	}
	if !p.Parse(context.Background(), "cv.exe", []byte("MZ")).Empty() {
		t.Fatalf("expected empty fields for unsupported type")
	}
	if !p.Parse(context.Background(), "cv.docx", []byte("PK broken")).Empty() {
		t.Fatalf("expected empty fields for a broken docx")
	}
}

func buildDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body.String() + `</w:body></w:document>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
