package repository

import (
	"context"
)

type questionStore interface {
	GetQuestionsBySection(ctx context.Context, arg GetQuestionsBySectionParams) ([]BankQuestion, error)
	InsertQuestion(ctx context.Context, arg BankQuestion) error
	CountQuestionsBySection(ctx context.Context, sectionID string) (int64, error)
}

// QuestionRepository wraps queries for curated question access.
type QuestionRepository struct {
	store questionStore
}

func NewQuestionRepository(store questionStore) *QuestionRepository {
	return &QuestionRepository{store: store}
}

// FetchSection returns up to limit random questions for a section.
func (r *QuestionRepository) FetchSection(ctx context.Context, sectionID string, limit int) ([]BankQuestion, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.store.GetQuestionsBySection(ctx, GetQuestionsBySectionParams{
		SectionID: sectionID,
		Limit:     int32(limit),
	})
}

// Insert stores a verified question (imported bank files or generator output).
func (r *QuestionRepository) Insert(ctx context.Context, q BankQuestion) error {
	return r.store.InsertQuestion(ctx, q)
}

// Count reports how many curated questions a section has.
func (r *QuestionRepository) Count(ctx context.Context, sectionID string) (int64, error) {
	return r.store.CountQuestionsBySection(ctx, sectionID)
}
