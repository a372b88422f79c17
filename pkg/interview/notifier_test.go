package interview

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
	"mockinterview/pkg/store"
)

func TestNotifierDeduplicatesByEventKey(t *testing.T) {
	st := store.NewMemoryStore()
	n := NewNotifier(st)
	ctx := context.Background()
	ev := events.Event{Kind: events.KindUserSignedUp, Key: "user.signed_up:u1", UserID: "u1"}

	for i := 0; i < 3; i++ {
		if err := n.Handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	list, err := n.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Message != "Welcome to SmartInterviewer!" || list[0].Read {
		t.Fatalf("unexpected notifications %+v", list)
	}
}

func TestNotifierOrdersByEmission(t *testing.T) {
	st := store.NewMemoryStore()
	n := NewNotifier(st)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return frozen }
	ctx := context.Background()

	keys := []string{"s1", "s2", "s3"}
	for _, k := range keys {
		ev := events.Event{Kind: events.KindReportReady, Key: "session.report_ready:" + k, UserID: "u1", SessionID: k}
		if err := n.Handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	list, _ := n.List(ctx, "u1")
	if len(list) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(list))
	}
	for i, want := range []string{"s3", "s2", "s1"} {
		if list[i].SessionID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].SessionID)
		}
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) || !list[1].CreatedAt.After(list[2].CreatedAt) {
		t.Fatalf("timestamps must be strictly increasing: %+v", list)
	}
	if list[2].Message != "Your interview report for session s1 is ready." {
		t.Fatalf("unexpected message %q", list[2].Message)
	}
}

func TestNotifierMarkRead(t *testing.T) {
	st := store.NewMemoryStore()
	n := NewNotifier(st)
	ctx := context.Background()
	_ = n.Handle(ctx, events.Event{Kind: events.KindUserSignedUp, Key: "k1", UserID: "u1"})
	list, _ := n.List(ctx, "u1")

	if err := n.MarkRead(ctx, "u2", list[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign notification, got %v", err)
	}
	if err := n.MarkRead(ctx, "u1", list[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	list, _ = n.List(ctx, "u1")
	if !list[0].Read {
		t.Fatalf("expected notification marked read")
	}
}

func TestNotifierIgnoresUnknownKindsAndClipsMessages(t *testing.T) {
	st := store.NewMemoryStore()
	n := NewNotifier(st)
	ctx := context.Background()
	if err := n.Handle(ctx, events.Event{Kind: "something.else", Key: "x", UserID: "u1"}); err != nil {
		t.Fatalf("handle unknown: %v", err)
	}
	long := strings.Repeat("é", 400)
	_ = n.Handle(ctx, events.Event{Kind: events.KindReportReady, Key: "r", UserID: "u1", SessionID: long})
	list, _ := n.List(ctx, "u1")
	if len(list) != 1 || list[0].Kind != domain.NotifyReportReady {
		t.Fatalf("unexpected notifications %+v", list)
	}
	if got := utf8.RuneCountInString(list[0].Message); got != maxNotificationRunes {
		t.Fatalf("expected message clipped to %d runes, got %d", maxNotificationRunes, got)
	}
}
