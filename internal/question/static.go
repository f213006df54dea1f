package question

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
)

// BankFile is the on-disk layout accepted by LoadBank.
type BankFile struct {
	Sections map[string][]Question `json:"sections"`
}

// StaticSource serves questions from memory. Used by the CLI and tests.
type StaticSource struct {
	bySection map[string][]Question
}

var _ Source = (*StaticSource)(nil)

func NewStaticSource(bySection map[string][]Question) *StaticSource {
	return &StaticSource{bySection: bySection}
}

// FetchQuestions returns copies of the stored questions, trimmed to the
// section's expected count.
func (s *StaticSource) FetchQuestions(ctx context.Context, section catalog.Section) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := s.bySection[section.ID]
	n := len(stored)
	if section.QuestionCount < n {
		n = section.QuestionCount
	}
	out := make([]Question, 0, n)
	for _, q := range stored[:n] {
		c := q.Clone()
		if c.Origin == "" {
			c.Origin = OriginStatic
		}
		out = append(out, c)
	}
	return out, nil
}

// SectionIDs lists the sections with stored questions.
func (s *StaticSource) SectionIDs() []string {
	ids := make([]string, 0, len(s.bySection))
	for id := range s.bySection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Questions returns the stored questions for a section.
func (s *StaticSource) Questions(sectionID string) []Question {
	return s.bySection[sectionID]
}

// LoadBank reads a JSON bank file. Invalid questions fail the load so a bad
// file is caught before it reaches a session.
func LoadBank(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank: %w", err)
	}
	var file BankFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode bank: %w", err)
	}
	for sectionID, qs := range file.Sections {
		for i, q := range qs {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("bank section %s question %d: %w", sectionID, i, err)
			}
			if q.ID == "" {
				qs[i].ID = fmt.Sprintf("%s-%d", sectionID, i+1)
			}
		}
	}
	return NewStaticSource(file.Sections), nil
}
