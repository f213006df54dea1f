package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/exam"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a full exam session in-process and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		opts := simulation{logger: commandLogger(cmd)}
		opts.profile, _ = f.GetString("profile")
		opts.bankPath, _ = f.GetString("bank")
		opts.tick, _ = f.GetDuration("tick")
		opts.accuracy, _ = f.GetFloat64("accuracy")
		opts.seed, _ = f.GetUint64("seed")
		opts.sectionSeconds, _ = f.GetInt("section-seconds")
		opts.expire, _ = f.GetBool("expire")
		timeout, _ := f.GetDuration("timeout")

		if opts.accuracy < 0 || opts.accuracy > 1 {
			return fmt.Errorf("--accuracy must be within [0, 1]")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		report, err := opts.run(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.String("profile", catalog.ProfileSAT, "Catalog profile")
	f.String("bank", "", "Question bank JSON file (synthetic questions when empty)")
	f.Duration("tick", 10*time.Millisecond, "Wall time of one countdown second")
	f.Float64("accuracy", 0.8, "Probability of picking the correct option")
	f.Uint64("seed", 1, "Random seed for answers and synthetic questions")
	f.Int("section-seconds", 0, "Override every section duration (0 keeps the catalog)")
	f.Bool("expire", false, "Never submit; let every section time out")
	f.Duration("timeout", 5*time.Minute, "Abort the simulation after this long")
}

type simulation struct {
	profile        string
	bankPath       string
	tick           time.Duration
	accuracy       float64
	seed           uint64
	sectionSeconds int
	expire         bool
	logger         zerolog.Logger
}

func (s simulation) run(ctx context.Context) (exam.Report, error) {
	cat, err := catalog.Lookup(s.profile)
	if err != nil {
		return exam.Report{}, err
	}
	if s.sectionSeconds > 0 {
		for i := range cat.Sections {
			cat.Sections[i].DurationSeconds = s.sectionSeconds
		}
	}

	rng := rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	var source question.Source
	if s.bankPath != "" {
		if source, err = question.LoadBank(s.bankPath); err != nil {
			return exam.Report{}, err
		}
	} else {
		source = syntheticBank(cat, rng)
	}

	reports := make(chan exam.Report, 1)
	session, err := exam.NewSession(exam.Options{
		CandidateID:  "examctl",
		Catalog:      cat,
		Source:       source,
		TickInterval: s.tick,
		Observer: exam.ObserverFuncs{
			SectionChange: func(_ context.Context, c exam.SectionChange) {
				s.logger.Info().
					Str("from", c.FromSectionID).
					Str("to", c.ToSectionID).
					Str("trigger", string(c.Trigger)).
					Msg("section changed")
			},
		},
		Reporter: exam.ReporterFunc(func(_ context.Context, r exam.Report) error {
			reports <- r
			return nil
		}),
		Logger: s.logger,
	})
	if err != nil {
		return exam.Report{}, err
	}
	defer session.Close()

	if _, err := session.Start(ctx); err != nil {
		return exam.Report{}, err
	}
	if err := s.drive(ctx, session, rng); err != nil {
		return exam.Report{}, err
	}

	select {
	case r := <-reports:
		return r, nil
	case <-ctx.Done():
		return exam.Report{}, fmt.Errorf("waiting for report: %w", ctx.Err())
	}
}

// drive answers every materialized question, then submits or waits for the
// timer, section by section until the session completes.
func (s simulation) drive(ctx context.Context, session *exam.Session, rng *rand.Rand) error {
	for {
		snap, err := waitFor(ctx, session, func(snap exam.Snapshot) bool {
			return snap.Phase == exam.PhaseCompleted || !snap.Loading
		})
		if err != nil {
			return err
		}
		if snap.Phase == exam.PhaseCompleted {
			return nil
		}

		sectionID := snap.SectionID
		for i, q := range snap.Questions {
			if _, err := session.SelectAnswer(ctx, sectionID, i, s.pick(q, rng)); err != nil {
				if exam.IsRejection(err) {
					break
				}
				return err
			}
		}

		if s.expire {
			_, err = waitFor(ctx, session, func(next exam.Snapshot) bool {
				return next.Phase == exam.PhaseCompleted || next.SectionID != sectionID
			})
			if err != nil {
				return err
			}
			continue
		}
		if _, err := session.SubmitSection(ctx, sectionID); err != nil && !exam.IsRejection(err) {
			return err
		}
	}
}

func (s simulation) pick(q question.Question, rng *rand.Rand) int {
	if len(q.Options) < 2 || rng.Float64() < s.accuracy {
		return q.CorrectOptionIndex
	}
	wrong := rng.IntN(len(q.Options) - 1)
	if wrong >= q.CorrectOptionIndex {
		wrong++
	}
	return wrong
}

func waitFor(ctx context.Context, session *exam.Session, cond func(exam.Snapshot) bool) (exam.Snapshot, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := session.Snapshot(ctx)
		if err != nil {
			return exam.Snapshot{}, err
		}
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return exam.Snapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func syntheticBank(cat catalog.Catalog, rng *rand.Rand) *question.StaticSource {
	bySection := make(map[string][]question.Question, len(cat.Sections))
	for _, section := range cat.Sections {
		qs := make([]question.Question, section.QuestionCount)
		for i := range qs {
			qs[i] = question.Question{
				ID:                 fmt.Sprintf("%s-%d", section.ID, i+1),
				Text:               fmt.Sprintf("%s question %d", section.DisplayName, i+1),
				Options:            []string{"A", "B", "C", "D"},
				CorrectOptionIndex: rng.IntN(4),
			}
		}
		bySection[section.ID] = qs
	}
	return question.NewStaticSource(bySection)
}
