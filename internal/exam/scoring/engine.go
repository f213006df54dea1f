package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gokatarajesh/exam-engine/internal/question"
)

// Config holds the exam's scale and composite rule.
type Config struct {
	MinScale  int
	MaxScale  int
	Composite CompositeRule
}

// DefaultConfig returns the SAT scale: 200..800 per bucket,
// composite (reading+writing)/2 + math on 400..1600.
func DefaultConfig() Config {
	return Config{
		MinScale:  200,
		MaxScale:  800,
		Composite: CompositeRule{Terms: [][]string{{"reading", "writing"}, {"math"}}},
	}
}

// CompositeRule sums terms; each term is the rounded mean of its buckets'
// scaled scores. A rule with no terms averages every bucket.
type CompositeRule struct {
	Terms [][]string
}

// ParseCompositeRule reads "a|b,c": terms split on ',' and buckets
// averaged within a term split on '|'.
func ParseCompositeRule(s string) (CompositeRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CompositeRule{}, nil
	}
	var rule CompositeRule
	for _, rawTerm := range strings.Split(s, ",") {
		var term []string
		for _, bucket := range strings.Split(rawTerm, "|") {
			bucket = strings.TrimSpace(bucket)
			if bucket == "" {
				return CompositeRule{}, fmt.Errorf("composite rule %q: empty bucket name", s)
			}
			term = append(term, bucket)
		}
		rule.Terms = append(rule.Terms, term)
	}
	return rule, nil
}

func (r CompositeRule) String() string {
	terms := make([]string, len(r.Terms))
	for i, t := range r.Terms {
		terms[i] = strings.Join(t, "|")
	}
	return strings.Join(terms, ",")
}

// Validate reports an inverted or empty scale.
func (c Config) Validate() error {
	if c.MaxScale <= c.MinScale {
		return errors.New("max scale must exceed min scale")
	}
	return nil
}

// SectionInput is one section's finalized questions and answers.
type SectionInput struct {
	SectionID string
	Bucket    string
	Questions []question.Question
	Answers   []*int
}

// BucketScore is raw and scaled correctness for one subject bucket.
type BucketScore struct {
	Bucket  string `json:"bucket"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Scaled  int    `json:"scaled"`
}

// BreakdownRow is the per-question review record.
type BreakdownRow struct {
	SectionID          string `json:"section_id"`
	Bucket             string `json:"bucket"`
	QuestionIndex      int    `json:"question_index"`
	QuestionID         string `json:"question_id"`
	Selected           *int   `json:"selected"`
	CorrectOptionIndex int    `json:"correct_option_index"`
	Correct            bool   `json:"correct"`
}

// Result is the immutable scorer output.
type Result struct {
	Buckets      []BucketScore  `json:"buckets"`
	Composite    int            `json:"composite"`
	MinComposite int            `json:"min_composite"`
	MaxComposite int            `json:"max_composite"`
	Breakdown    []BreakdownRow `json:"breakdown"`
}

// Bucket returns the named bucket score.
func (r Result) Bucket(name string) (BucketScore, bool) {
	for _, b := range r.Buckets {
		if b.Bucket == name {
			return b, true
		}
	}
	return BucketScore{}, false
}

// Engine computes scaled scores with configurable constants.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

func (e *Engine) Config() Config {
	return e.config
}

// Score never fails: a missing answer is incorrect and an empty bucket
// scores MinScale.
func (e *Engine) Score(sections []SectionInput) Result {
	var (
		order   []string
		buckets = map[string]*BucketScore{}
		rows    []BreakdownRow
	)
	ensure := func(name string) *BucketScore {
		b, ok := buckets[name]
		if !ok {
			b = &BucketScore{Bucket: name}
			buckets[name] = b
			order = append(order, name)
		}
		return b
	}

	for _, s := range sections {
		b := ensure(s.Bucket)
		for i, q := range s.Questions {
			var selected *int
			if i < len(s.Answers) && s.Answers[i] != nil {
				v := *s.Answers[i]
				selected = &v
			}
			correct := selected != nil && *selected == q.CorrectOptionIndex
			b.Total++
			if correct {
				b.Correct++
			}
			rows = append(rows, BreakdownRow{
				SectionID:          s.SectionID,
				Bucket:             s.Bucket,
				QuestionIndex:      i,
				QuestionID:         q.ID,
				Selected:           selected,
				CorrectOptionIndex: q.CorrectOptionIndex,
				Correct:            correct,
			})
		}
	}
	for _, term := range e.config.Composite.Terms {
		for _, name := range term {
			ensure(name)
		}
	}

	result := Result{Breakdown: rows}
	scaled := make(map[string]int, len(buckets))
	for _, name := range order {
		b := buckets[name]
		b.Scaled = e.Scale(b.Correct, b.Total)
		scaled[name] = b.Scaled
		result.Buckets = append(result.Buckets, *b)
	}

	terms := e.config.Composite.Terms
	if len(terms) == 0 {
		all := append([]string(nil), order...)
		sort.Strings(all)
		terms = [][]string{all}
	}
	for _, term := range terms {
		if len(term) == 0 {
			continue
		}
		sum := 0
		for _, name := range term {
			sum += scaled[name]
		}
		result.Composite += round(float64(sum) / float64(len(term)))
		result.MinComposite += e.config.MinScale
		result.MaxComposite += e.config.MaxScale
	}
	return result
}

// Scale maps correct/total onto [MinScale, MaxScale]. total == 0 yields MinScale.
func (e *Engine) Scale(correct, total int) int {
	if total <= 0 {
		return e.config.MinScale
	}
	ratio := float64(correct) / float64(total)
	return round(float64(e.config.MinScale) + ratio*float64(e.config.MaxScale-e.config.MinScale))
}

func round(x float64) int {
	return int(math.Round(x))
}
