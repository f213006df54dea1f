package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/exam"
)

var (
	_ exam.Observer = (*Fanout)(nil)
	_ exam.Reporter = (*Fanout)(nil)
)

// Fanout delivers session output to several sinks in registration order.
// Observer sinks are best effort. Reporter failures are logged and joined so
// one broken sink does not keep the others from receiving the result.
type Fanout struct {
	observers []exam.Observer
	reporters []exam.Reporter
	logger    zerolog.Logger
}

func NewFanout(logger zerolog.Logger) *Fanout {
	return &Fanout{logger: logger.With().Str("component", "report_fanout").Logger()}
}

// Observe adds observer sinks. Nil entries are ignored.
func (f *Fanout) Observe(observers ...exam.Observer) *Fanout {
	for _, o := range observers {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
	return f
}

// ReportTo adds reporter sinks. Nil entries are ignored.
func (f *Fanout) ReportTo(reporters ...exam.Reporter) *Fanout {
	for _, r := range reporters {
		if r != nil {
			f.reporters = append(f.reporters, r)
		}
	}
	return f
}

func (f *Fanout) OnSnapshot(ctx context.Context, snap exam.Snapshot) {
	for _, o := range f.observers {
		o.OnSnapshot(ctx, snap)
	}
}

func (f *Fanout) OnSectionChange(ctx context.Context, change exam.SectionChange) {
	for _, o := range f.observers {
		o.OnSectionChange(ctx, change)
	}
}

func (f *Fanout) Report(ctx context.Context, report exam.Report) error {
	var errs []error
	for _, r := range f.reporters {
		if err := r.Report(ctx, report); err != nil {
			f.logger.Warn().
				Err(err).
				Str("sink", fmt.Sprintf("%T", r)).
				Str("session_id", report.SessionID).
				Msg("report sink failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
