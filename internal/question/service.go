package question

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
)

// Bank is the curated question store (implemented by repository.QuestionRepository).
type Bank interface {
	FetchSection(ctx context.Context, sectionID string, limit int) ([]repository.BankQuestion, error)
}

// Service orchestrates access to the cache, curated bank, and generator fallback.
type Service struct {
	cache     SectionCache
	bank      Bank
	generator Generator
	logger    zerolog.Logger
}

var _ Source = (*Service)(nil)

// ServiceOptions wires optional tiers. Any tier may be nil.
type ServiceOptions struct {
	Cache     SectionCache
	Bank      Bank
	Generator Generator
	Logger    zerolog.Logger
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		cache:     opts.Cache,
		bank:      opts.Bank,
		generator: opts.Generator,
		logger:    opts.Logger.With().Str("component", "question_service").Logger(),
	}
}

// FetchQuestions returns up to section.QuestionCount valid questions,
// respecting the priority: cache -> curated bank -> generator. Under-delivery
// is passed through. When every tier fails the result is empty and the last
// error is returned.
func (s *Service) FetchQuestions(ctx context.Context, section catalog.Section) ([]Question, error) {
	need := section.QuestionCount
	if need <= 0 {
		return nil, nil
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, section.ID, need)
		if err != nil {
			s.logger.Warn().Err(err).Str("section_id", section.ID).Msg("question cache read failed")
		} else if len(cached) > 0 {
			return cached, nil
		}
	}

	var (
		result  = make([]Question, 0, need)
		seen    = make(map[string]struct{}, need)
		lastErr error
	)
	add := func(qs []Question) {
		for _, q := range qs {
			if len(result) >= need {
				return
			}
			if err := q.Validate(); err != nil {
				s.logger.Debug().Err(err).Str("question_id", q.ID).Msg("dropping invalid question")
				continue
			}
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			if _, dup := seen[q.ID]; dup {
				continue
			}
			seen[q.ID] = struct{}{}
			result = append(result, q)
		}
	}

	if s.bank != nil {
		rows, err := s.bank.FetchSection(ctx, section.ID, need)
		if err != nil {
			lastErr = fmt.Errorf("bank: %w", err)
			s.logger.Warn().Err(err).Str("section_id", section.ID).Msg("curated bank fetch failed")
		} else {
			add(fromBank(rows))
		}
	}

	if len(result) < need && s.generator != nil {
		generated, err := s.generator.Generate(ctx, GenerateRequest{
			SectionID:   section.ID,
			SectionName: section.DisplayName,
			Bucket:      section.Bucket,
			Count:       need - len(result),
		})
		if err != nil {
			lastErr = fmt.Errorf("generator: %w", err)
			s.logger.Warn().Err(err).Str("section_id", section.ID).Msg("generator fallback failed")
		} else {
			add(generated)
		}
	}

	if len(result) == 0 {
		if lastErr == nil {
			lastErr = ErrNoQuestions
		}
		return nil, lastErr
	}

	if len(result) == need && s.cache != nil {
		// Redis is tuned with maxmemory-policy=allkeys-lru so saving the set respects LRU eviction.
		if err := s.cache.Set(ctx, section.ID, need, result); err != nil {
			s.logger.Warn().Err(err).Str("section_id", section.ID).Msg("question cache write failed")
		}
	}
	return result, nil
}

// Enqueue asks the generator to pre-warm a section asynchronously.
func (s *Service) Enqueue(ctx context.Context, section catalog.Section) error {
	if s.generator == nil {
		return errors.New("generator unavailable")
	}
	return s.generator.Enqueue(ctx, GenerateRequest{
		SectionID:   section.ID,
		SectionName: section.DisplayName,
		Bucket:      section.Bucket,
		Count:       section.QuestionCount,
	})
}

func fromBank(rows []repository.BankQuestion) []Question {
	out := make([]Question, 0, len(rows))
	for _, row := range rows {
		out = append(out, Question{
			ID:                 row.ID,
			Text:               row.Text,
			Options:            row.Options,
			CorrectOptionIndex: row.CorrectIndex,
			Explanation:        row.Explanation,
			Origin:             OriginBank,
		})
	}
	return out
}

// ToBank converts a question to a bank row for the given section.
func ToBank(sectionID string, q Question) repository.BankQuestion {
	id := q.ID
	if id == "" {
		id = uuid.NewString()
	}
	return repository.BankQuestion{
		ID:           id,
		SectionID:    sectionID,
		Text:         q.Text,
		Options:      q.Options,
		CorrectIndex: q.CorrectOptionIndex,
		Explanation:  q.Explanation,
	}
}
