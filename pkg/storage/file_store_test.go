package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	key := ObjectKey("audio", "u1", "a1", "answer.webm")
	if key != "audio/u1/a1/answer.webm" {
		t.Fatalf("unexpected key %q", key)
	}
	if err := fs.Put(ctx, key, strings.NewReader("bytes"), 5, "audio/webm"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := fs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "bytes" {
		t.Fatalf("unexpected content %q", data)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Get(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestFileStoreKeysStayInsideBase(t *testing.T) {
	base := t.TempDir()
	fs, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	target, err := fs.resolve("../../etc/passwd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(target, base) {
		t.Fatalf("expected %q under %q", target, base)
	}
	if _, err := fs.resolve(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestObjectKeySanitizesFilename(t *testing.T) {
	cases := map[string]string{
		"../../x.pdf":     "resumes/u/r/x.pdf",
		`C:\docs\cv.docx`: "resumes/u/r/cv.docx",
		"":                "resumes/u/r/upload",
	}
	for in, want := range cases {
		if got := ObjectKey("resumes", "u", "r", in); got != want {
			t.Fatalf("ObjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}
