package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	"github.com/gokatarajesh/exam-engine/internal/exam"
)

// ResultSaver is implemented by repository.ResultRepository.
type ResultSaver interface {
	Save(ctx context.Context, result repository.ExamResult) error
}

// EventAppender is implemented by repository.EventRepository.
type EventAppender interface {
	Append(ctx context.Context, ev repository.ExamEvent) (repository.ExamEvent, error)
}

var (
	_ exam.Observer = (*Recorder)(nil)
	_ exam.Reporter = (*Recorder)(nil)
)

// Recorder persists final results and keeps the session audit log.
type Recorder struct {
	results ResultSaver
	events  EventAppender
	logger  zerolog.Logger
}

// NewRecorder creates a recorder. events may be nil to skip the audit log.
func NewRecorder(results ResultSaver, events EventAppender, logger zerolog.Logger) *Recorder {
	return &Recorder{
		results: results,
		events:  events,
		logger:  logger.With().Str("component", "report_recorder").Logger(),
	}
}

func (r *Recorder) OnSnapshot(context.Context, exam.Snapshot) {}

func (r *Recorder) OnSectionChange(ctx context.Context, change exam.SectionChange) {
	if err := r.appendEvent(ctx, change.SessionID, EventSectionChanged, change); err != nil {
		r.logger.Warn().Err(err).Str("session_id", change.SessionID).Msg("failed to record section change")
	}
}

// Report stores the result row, then the completion event. A repeated report
// for the same session leaves the stored row untouched.
func (r *Recorder) Report(ctx context.Context, report exam.Report) error {
	buckets, err := json.Marshal(report.Result.Buckets)
	if err != nil {
		return fmt.Errorf("marshal buckets: %w", err)
	}
	breakdown, err := json.Marshal(report.Result.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	err = r.results.Save(ctx, repository.ExamResult{
		SessionID:   report.SessionID,
		CandidateID: report.CandidateID,
		Profile:     report.Profile,
		Composite:   report.Result.Composite,
		Buckets:     buckets,
		Breakdown:   breakdown,
		Trigger:     string(report.Trigger),
		CompletedAt: report.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	summary := struct {
		Trigger   exam.Trigger `json:"trigger"`
		Composite int          `json:"composite"`
		StartedAt time.Time    `json:"started_at"`
	}{report.Trigger, report.Result.Composite, report.StartedAt.UTC()}
	if err := r.appendEvent(ctx, report.SessionID, EventExamCompleted, summary); err != nil {
		// The result row is what readers rely on.
		r.logger.Warn().Err(err).Str("session_id", report.SessionID).Msg("failed to record completion event")
	}

	r.logger.Info().
		Str("session_id", report.SessionID).
		Str("candidate_id", report.CandidateID).
		Int("composite", report.Result.Composite).
		Msg("exam result recorded")
	return nil
}

func (r *Recorder) appendEvent(ctx context.Context, sessionID, typ string, data any) error {
	if r.events == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.events.Append(ctx, repository.ExamEvent{
		SessionID: sessionID,
		Type:      typ,
		Data:      raw,
	})
	return err
}
