package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"mockinterview/internal/util"
	"mockinterview/pkg/domain"
	"mockinterview/pkg/events"
	"mockinterview/pkg/store"
)

const maxNotificationRunes = 255

// Notifier turns pipeline events into user notifications. It is safe to
// deliver the same event more than once: rows are de-duplicated by event key.
type Notifier struct {
	store store.Store
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewNotifier(st store.Store) *Notifier {
	return &Notifier{store: st, now: time.Now}
}

// Handle is an events.Handler.
func (n *Notifier) Handle(ctx context.Context, ev events.Event) error {
	kind := domain.NotificationKind(ev.Kind)
	var message string
	switch kind {
	case domain.NotifySignedUp:
		message = "Welcome to SmartInterviewer!"
	case domain.NotifyAnswerScored:
		message = n.answerMessage(ev.AnswerID)
	case domain.NotifyReportReady:
		message = fmt.Sprintf("Your interview report for session %s is ready.", ev.SessionID)
	default:
		slog.Debug("ignoring event", "kind", ev.Kind, "key", ev.Key)
		return nil
	}
	notification := domain.Notification{
		ID:        util.NewID(),
		UserID:    ev.UserID,
		SessionID: ev.SessionID,
		Kind:      kind,
		EventKey:  ev.Key,
		Message:   clipRunes(message, maxNotificationRunes),
		CreatedAt: n.stamp(),
	}
	created, err := n.store.CreateNotification(notification)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if !created {
		slog.Debug("duplicate event ignored", "kind", ev.Kind, "key", ev.Key)
	}
	return nil
}

func (n *Notifier) answerMessage(answerID string) string {
	const fallback = "Your answer has been analyzed."
	answer, ok, err := n.store.GetAnswer(answerID)
	if err != nil || !ok {
		return fallback
	}
	question, ok, err := n.store.GetQuestion(answer.QuestionID)
	if err != nil || !ok {
		return fallback
	}
	return fmt.Sprintf("Your answer for question '%s...' has been analyzed.", prefixRunes(question.Text, 30))
}

// stamp returns strictly increasing timestamps at microsecond precision so
// listing order matches emission order.
func (n *Notifier) stamp() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := n.now().UTC().Truncate(time.Microsecond)
	if !t.After(n.last) {
		t = n.last.Add(time.Microsecond)
	}
	n.last = t
	return t
}

// List returns the user's notifications, newest first.
func (n *Notifier) List(_ context.Context, userID string) ([]domain.Notification, error) {
	return n.store.ListNotifications(userID)
}

// MarkRead sets the read flag on one of the user's notifications.
func (n *Notifier) MarkRead(_ context.Context, userID, notificationID string) error {
	ok, err := n.store.MarkNotificationRead(notificationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: notification %s", ErrNotFound, notificationID)
	}
	return nil
}

func prefixRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
