package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Interview#2024go")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Interview#2024go" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected a bcrypt hash, got %q", hash)
	}
	if !CheckPassword("Interview#2024go", hash) {
		t.Fatalf("expected the signup password to match")
	}
	if CheckPassword("interview#2024go", hash) {
		t.Fatalf("password check must be case sensitive")
	}
	if CheckPassword("Interview#2024go", "") {
		t.Fatalf("empty stored hash must never match")
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		wantErr  string
	}{
		{password: "Candidate#2024"},
		{password: "Kandidát#2024ü"},
		{password: "Sh0rt#pass", wantErr: "at least 12"},
		{password: "Aa1#" + strings.Repeat("x", 69), wantErr: "at most 72"},
		{password: "candidate#2024", wantErr: "uppercase"},
		{password: "CANDIDATE#2024", wantErr: "lowercase"},
		{password: "Candidate#abcd", wantErr: "digit"},
		{password: "Candidate20245", wantErr: "special"},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.password, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%q: expected error containing %q, got %v", tc.password, tc.wantErr, err)
		}
	}
}
