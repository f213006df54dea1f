package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/exam"
)

// DefaultChannel is the Pub/Sub channel exam events are published on.
const DefaultChannel = "exam:events"

// Event types published to the notification channel.
const (
	EventSectionChanged = "section_changed"
	EventExamCompleted  = "exam_completed"
)

// Event is the JSON body of a notification.
type Event struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id"`
	CandidateID   string    `json:"candidate_id"`
	Profile       string    `json:"profile,omitempty"`
	Trigger       string    `json:"trigger"`
	FromSectionID string    `json:"from_section_id,omitempty"`
	ToSectionID   string    `json:"to_section_id,omitempty"`
	FromIndex     int       `json:"from_index,omitempty"`
	ToIndex       int       `json:"to_index,omitempty"`
	Composite     *int      `json:"composite,omitempty"`
	At            time.Time `json:"at"`
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

var (
	_ exam.Observer = (*Publisher)(nil)
	_ exam.Reporter = (*Publisher)(nil)
)

// Publisher broadcasts section changes and completions over Redis Pub/Sub
// for downstream notification services. Delivery is fire-and-forget.
type Publisher struct {
	redis   publishClient
	channel string
	logger  zerolog.Logger
}

// NewPublisher creates a Pub/Sub publisher. An empty channel uses DefaultChannel.
func NewPublisher(redis publishClient, channel string, logger zerolog.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		redis:   redis,
		channel: channel,
		logger:  logger.With().Str("component", "report_publisher").Logger(),
	}
}

// OnSnapshot is a no-op; snapshots are mirrored by SnapshotStore.
func (p *Publisher) OnSnapshot(context.Context, exam.Snapshot) {}

func (p *Publisher) OnSectionChange(ctx context.Context, change exam.SectionChange) {
	err := p.publish(ctx, Event{
		Type:          EventSectionChanged,
		SessionID:     change.SessionID,
		CandidateID:   change.CandidateID,
		Trigger:       string(change.Trigger),
		FromSectionID: change.FromSectionID,
		ToSectionID:   change.ToSectionID,
		FromIndex:     change.FromIndex,
		ToIndex:       change.ToIndex,
		At:            change.At,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("session_id", change.SessionID).Msg("failed to publish section change")
	}
}

func (p *Publisher) Report(ctx context.Context, report exam.Report) error {
	composite := report.Result.Composite
	return p.publish(ctx, Event{
		Type:        EventExamCompleted,
		SessionID:   report.SessionID,
		CandidateID: report.CandidateID,
		Profile:     report.Profile,
		Trigger:     string(report.Trigger),
		Composite:   &composite,
		At:          report.CompletedAt,
	})
}

func (p *Publisher) publish(ctx context.Context, evt Event) error {
	if p.redis == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}
