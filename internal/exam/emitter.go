package exam

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type event struct {
	snapshot *Snapshot
	change   *SectionChange
	report   *Report
}

// emitter delivers session output in order on its own goroutine so the
// event loop never waits on observers or the reporter.
type emitter struct {
	observer      Observer
	reporter      Reporter
	reportTimeout time.Duration
	logger        zerolog.Logger

	mu     sync.Mutex
	queue  []event
	closed bool

	signal chan struct{}
	done   chan struct{}
}

func newEmitter(observer Observer, reporter Reporter, reportTimeout time.Duration, logger zerolog.Logger) *emitter {
	e := &emitter{
		observer:      observer,
		reporter:      reporter,
		reportTimeout: reportTimeout,
		logger:        logger,
		signal:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) push(ev event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	e.wake()
}

func (e *emitter) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// close stops accepting events and waits until everything queued is delivered.
func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wake()
	<-e.done
}

func (e *emitter) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, ev := range batch {
			e.deliver(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-e.signal
	}
}

func (e *emitter) deliver(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.reportTimeout)
	defer cancel()

	switch {
	case ev.snapshot != nil:
		if e.observer != nil {
			e.observer.OnSnapshot(ctx, *ev.snapshot)
		}
	case ev.change != nil:
		if e.observer != nil {
			e.observer.OnSectionChange(ctx, *ev.change)
		}
	case ev.report != nil:
		if e.reporter == nil {
			return
		}
		if err := e.reporter.Report(ctx, *ev.report); err != nil {
			e.logger.Error().Err(err).Msg("failed to deliver exam report")
		}
	}
}
