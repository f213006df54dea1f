package question

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
)

// FetcherWorker warms the section cache ahead of sessions reaching a section.
type FetcherWorker struct {
	service   *Service
	queue     chan catalog.Section
	logger    zerolog.Logger
	timeout   time.Duration
	shutdownC chan struct{}
}

func NewFetcherWorker(service *Service, queueSize int, logger zerolog.Logger, timeout time.Duration) *FetcherWorker {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	return &FetcherWorker{
		service:   service,
		queue:     make(chan catalog.Section, queueSize),
		logger:    logger.With().Str("component", "question_fetcher").Logger(),
		timeout:   timeout,
		shutdownC: make(chan struct{}),
	}
}

// Prefetch queues sections for warming. Sections that do not fit in the
// queue are skipped; a session will fetch them on demand.
func (w *FetcherWorker) Prefetch(sections ...catalog.Section) int {
	queued := 0
	for _, s := range sections {
		select {
		case w.queue <- s:
			queued++
		default:
			w.logger.Debug().Str("section_id", s.ID).Msg("prefetch queue full")
		}
	}
	return queued
}

func (w *FetcherWorker) Run() {
	for {
		select {
		case <-w.shutdownC:
			w.logger.Info().Msg("question fetcher stopping")
			return
		case section := <-w.queue:
			w.handle(section)
		}
	}
}

func (w *FetcherWorker) handle(section catalog.Section) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	qs, err := w.service.FetchQuestions(ctx, section)
	if err == nil && len(qs) >= section.QuestionCount {
		return
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("section_id", section.ID).Msg("prefetch failed")
	}
	if w.service.generator == nil {
		return
	}
	// Ask the generator service to pre-warm so the next attempt finds a full set.
	if enqueueErr := w.service.Enqueue(ctx, section); enqueueErr != nil {
		w.logger.Error().Err(enqueueErr).Str("section_id", section.ID).Msg("generator enqueue failed")
	}
}

func (w *FetcherWorker) Stop() {
	close(w.shutdownC)
}
