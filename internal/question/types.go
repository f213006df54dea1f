package question

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
)

// Origin labels where a question came from.
const (
	OriginBank      = "bank"
	OriginGenerator = "generator"
	OriginStatic    = "static"
)

var (
	ErrEmptyText     = errors.New("question text is empty")
	ErrTooFewOptions = errors.New("question needs at least two options")
	ErrBadCorrect    = errors.New("correct option index out of range")
	ErrNoQuestions   = errors.New("no questions available")
)

// Question is a scored multiple-choice item. Immutable once materialized.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation,omitempty"`
	Origin             string   `json:"origin,omitempty"`
}

// Validate enforces the structural rules every materialized question obeys.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyText
	}
	if len(q.Options) < 2 {
		return ErrTooFewOptions
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return fmt.Errorf("%w: %d of %d", ErrBadCorrect, q.CorrectOptionIndex, len(q.Options))
	}
	return nil
}

// Clone returns a copy that shares no slices with q.
func (q Question) Clone() Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Source materializes questions for a section. Implementations may be slow
// or fail; callers treat an error or an empty slice as a zero-question section.
type Source interface {
	FetchQuestions(ctx context.Context, section catalog.Section) ([]Question, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, section catalog.Section) ([]Question, error)

func (f SourceFunc) FetchQuestions(ctx context.Context, section catalog.Section) ([]Question, error) {
	return f(ctx, section)
}

// GenerateRequest asks a generator for fresh questions.
type GenerateRequest struct {
	SectionID   string
	SectionName string
	Bucket      string
	Count       int
}

// Generator produces questions when the curated bank runs short.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Question, error)
	Enqueue(ctx context.Context, req GenerateRequest) error
}
