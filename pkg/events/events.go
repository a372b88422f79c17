// Package events carries domain events between the interview pipeline and
// its consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	KindUserSignedUp  = "user.signed_up"
	KindAnswerScored  = "answer.analyzed"
	KindReportReady   = "session.report_ready"
	defaultEventsName = "interview.events"
)

// Event is a fact emitted by the pipeline. Key is stable per logical event so
// consumers can de-duplicate redeliveries.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	UserID     string    `json:"userId"`
	SessionID  string    `json:"sessionId,omitempty"`
	AnswerID   string    `json:"answerId,omitempty"`
	JobID      string    `json:"jobId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Handler consumes one event. A returned error asks the transport to
// redeliver when it can.
type Handler func(ctx context.Context, ev Event) error

// Bus publishes events and fans them out to subscribers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers handler and returns once consumption has started.
	// Delivery stops when ctx is cancelled or the bus is closed.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

func (e Event) validate() error {
	if e.Kind == "" {
		return errors.New("event kind required")
	}
	if e.Key == "" {
		return errors.New("event key required")
	}
	if e.UserID == "" {
		return errors.New("event user id required")
	}
	return nil
}

func encodeEvent(e Event) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func decodeEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.validate(); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
