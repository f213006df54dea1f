package exam

import (
	"context"
	"errors"
	"time"

	"github.com/gokatarajesh/exam-engine/internal/exam/scoring"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
)

// Trigger records what ended a section.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// Direction for Navigate.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// Rejections: the intent was ignored and state is unchanged.
var (
	ErrAlreadyStarted = errors.New("exam already started")
	ErrNotStarted     = errors.New("exam not started")
	ErrCompleted      = errors.New("exam completed")
	ErrStaleIntent    = errors.New("stale intent ignored")
	ErrOutOfBounds    = errors.New("intent out of bounds")
)

var (
	ErrClosed             = errors.New("session closed")
	ErrInvariantViolation = errors.New("invariant violation")
)

// IsRejection reports whether err means the intent was ignored rather than failed.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotStarted) ||
		errors.Is(err, ErrCompleted) ||
		errors.Is(err, ErrStaleIntent) ||
		errors.Is(err, ErrOutOfBounds)
}

// Snapshot is an immutable view of a session, safe to hand to other goroutines.
type Snapshot struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id"`
	Profile     string `json:"profile"`
	// Version increases with every emitted state.
	Version uint64 `json:"version"`
	Phase   Phase  `json:"phase"`

	SectionIndex          int    `json:"section_index"`
	SectionCount          int    `json:"section_count"`
	SectionID             string `json:"section_id"`
	SectionName           string `json:"section_name"`
	ExpectedQuestionCount int    `json:"expected_question_count"`
	QuestionIndex         int    `json:"question_index"`

	TimeRemainingSeconds int  `json:"time_remaining_seconds"`
	TimerRunning         bool `json:"timer_running"`
	Loading              bool `json:"loading"`
	FetchFailed          bool `json:"fetch_failed"`

	Questions []question.Question `json:"questions"`
	Answers   []*int              `json:"answers"`
	Flags     []bool              `json:"flags"`

	Result *scoring.Result `json:"result,omitempty"`
}

// SectionChange is emitted when a section is left for the next one.
type SectionChange struct {
	SessionID     string    `json:"session_id"`
	CandidateID   string    `json:"candidate_id"`
	FromIndex     int       `json:"from_index"`
	ToIndex       int       `json:"to_index"`
	FromSectionID string    `json:"from_section_id"`
	ToSectionID   string    `json:"to_section_id"`
	Trigger       Trigger   `json:"trigger"`
	At            time.Time `json:"at"`
}

// Report is the single completion record handed to the Reporter.
type Report struct {
	SessionID   string         `json:"session_id"`
	CandidateID string         `json:"candidate_id"`
	Profile     string         `json:"profile"`
	Trigger     Trigger        `json:"trigger"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Result      scoring.Result `json:"result"`
}

// Observer receives state snapshots and section changes in emission order.
type Observer interface {
	OnSnapshot(ctx context.Context, snap Snapshot)
	OnSectionChange(ctx context.Context, change SectionChange)
}

// Reporter receives the final result exactly once per completed session.
type Reporter interface {
	Report(ctx context.Context, report Report) error
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot      func(ctx context.Context, snap Snapshot)
	SectionChange func(ctx context.Context, change SectionChange)
}

func (o ObserverFuncs) OnSnapshot(ctx context.Context, snap Snapshot) {
	if o.Snapshot != nil {
		o.Snapshot(ctx, snap)
	}
}

func (o ObserverFuncs) OnSectionChange(ctx context.Context, change SectionChange) {
	if o.SectionChange != nil {
		o.SectionChange(ctx, change)
	}
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, report Report) error

func (f ReporterFunc) Report(ctx context.Context, report Report) error {
	return f(ctx, report)
}
