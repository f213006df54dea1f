package repository

import (
	"context"
)

type resultStore interface {
	UpsertResult(ctx context.Context, arg ExamResult) error
	GetResult(ctx context.Context, sessionID string) (ExamResult, error)
}

// ResultRepository persists final exam results. A session id is written at
// most once; repeated saves are ignored.
type ResultRepository struct {
	store resultStore
}

// NewResultRepository constructs a new result repository.
func NewResultRepository(store resultStore) *ResultRepository {
	return &ResultRepository{store: store}
}

// Save stores the result row.
func (r *ResultRepository) Save(ctx context.Context, result ExamResult) error {
	return r.store.UpsertResult(ctx, result)
}

// Get loads the result for a session.
func (r *ResultRepository) Get(ctx context.Context, sessionID string) (ExamResult, error) {
	return r.store.GetResult(ctx, sessionID)
}
