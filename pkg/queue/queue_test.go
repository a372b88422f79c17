package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 10, want: 5 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(time.Second, tc.attempt, 5*time.Second); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
	if got := Backoff(0, 3, time.Second); got != 0 {
		t.Fatalf("expected zero base to stay zero, got %v", got)
	}
}

func TestPermanentWrapsAndUnwraps(t *testing.T) {
	base := errors.New("answer vanished")
	err := fmt.Errorf("process: %w", Permanent(base))
	if !IsPermanent(err) {
		t.Fatalf("expected wrapped permanent error to be detected")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected permanent error to unwrap to base")
	}
	if IsPermanent(base) {
		t.Fatalf("plain error must not be permanent")
	}
	if Permanent(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}
