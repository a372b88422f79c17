package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "keeps upstream id", incoming: "lb-7f3a:0001", keep: true},
		{name: "mints when absent"},
		{name: "replaces id with spaces", incoming: "abc def"},
		{name: "replaces id with newline", incoming: "abc\nlevel=ERROR"},
		{name: "replaces oversized id", incoming: strings.Repeat("a", 129)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			if tc.incoming != "" {
				req.Header.Set(RequestIDHeader, tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			header := rec.Header().Get(RequestIDHeader)
			if header == "" || header != seen {
				t.Fatalf("header %q and context %q must match", header, seen)
			}
			if tc.keep != (header == tc.incoming) {
				t.Fatalf("incoming %q kept=%v, want %v", tc.incoming, header == tc.incoming, tc.keep)
			}
		})
	}
}
