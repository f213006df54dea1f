package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Bucket names used by the default profile.
const (
	BucketReading = "reading"
	BucketWriting = "writing"
	BucketMath    = "math"
)

// ProfileSAT is the default catalog profile.
const ProfileSAT = "sat"

// Section is one fixed-duration phase of an exam. Sections are attempted in
// catalog order and never revisited.
type Section struct {
	ID              string `json:"id" validate:"required"`
	DisplayName     string `json:"display_name" validate:"required"`
	Bucket          string `json:"bucket" validate:"required"`
	DurationSeconds int    `json:"duration_seconds" validate:"gt=0"`
	// QuestionCount is the expected count, used for progress display and as
	// the fetch target. The engine always uses the materialized length.
	QuestionCount int `json:"question_count" validate:"gte=0"`
}

// Duration returns the section budget as a time.Duration.
func (s Section) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Catalog is an ordered, immutable list of sections.
type Catalog struct {
	Profile  string    `json:"profile" validate:"required"`
	Sections []Section `json:"sections" validate:"required,min=1,dive"`
}

var (
	ErrUnknownProfile = errors.New("unknown catalog profile")
	ErrDuplicateID    = errors.New("duplicate section id")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks structural rules: at least one section, unique ids,
// positive durations and a bucket on every section.
func (c Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("catalog %q: %w", c.Profile, err)
	}
	seen := make(map[string]struct{}, len(c.Sections))
	for _, s := range c.Sections {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("catalog %q: %w: %s", c.Profile, ErrDuplicateID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Index returns the position of the section with the given id, or -1.
func (c Catalog) Index(id string) int {
	for i, s := range c.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Buckets returns the distinct buckets in first-seen order.
func (c Catalog) Buckets() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range c.Sections {
		if !seen[s.Bucket] {
			seen[s.Bucket] = true
			out = append(out, s.Bucket)
		}
	}
	return out
}

// TotalDuration sums every section's budget.
func (c Catalog) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range c.Sections {
		total += s.Duration()
	}
	return total
}

// SAT returns the four-section SAT layout.
func SAT() Catalog {
	return Catalog{
		Profile: ProfileSAT,
		Sections: []Section{
			{ID: "reading", DisplayName: "Reading", Bucket: BucketReading, DurationSeconds: 65 * 60, QuestionCount: 52},
			{ID: "writing", DisplayName: "Writing and Language", Bucket: BucketWriting, DurationSeconds: 35 * 60, QuestionCount: 44},
			{ID: "math-no-calc", DisplayName: "Math - No Calculator", Bucket: BucketMath, DurationSeconds: 25 * 60, QuestionCount: 20},
			{ID: "math-calc", DisplayName: "Math - Calculator", Bucket: BucketMath, DurationSeconds: 55 * 60, QuestionCount: 38},
		},
	}
}

var profiles = map[string]func() Catalog{
	ProfileSAT: SAT,
}

// Lookup returns a fresh copy of a registered profile.
func Lookup(profile string) (Catalog, error) {
	build, ok := profiles[strings.ToLower(strings.TrimSpace(profile))]
	if !ok {
		return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	return build(), nil
}

// Profiles lists registered profile names.
func Profiles() []string {
	out := make([]string, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	return out
}
