package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type eventStore interface {
	InsertEvent(ctx context.Context, arg ExamEvent) error
	ListEventsBySession(ctx context.Context, sessionID string) ([]ExamEvent, error)
}

// EventRepository is the append-only session audit log.
type EventRepository struct {
	store eventStore
	now   func() time.Time
}

func NewEventRepository(store eventStore) *EventRepository {
	return &EventRepository{store: store, now: time.Now}
}

// Append writes an event, filling in a time-ordered id and timestamp when missing.
func (r *EventRepository) Append(ctx context.Context, ev ExamEvent) (ExamEvent, error) {
	if ev.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return ExamEvent{}, err
		}
		ev.ID = id.String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	if err := r.store.InsertEvent(ctx, ev); err != nil {
		return ExamEvent{}, err
	}
	return ev, nil
}

// List returns a session's events in insertion order.
func (r *EventRepository) List(ctx context.Context, sessionID string) ([]ExamEvent, error) {
	return r.store.ListEventsBySession(ctx, sessionID)
}
