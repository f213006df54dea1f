package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/exam/scoring"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

const (
	defaultTickInterval  = time.Second
	defaultFetchTimeout  = 20 * time.Second
	defaultReportTimeout = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	ID          string
	CandidateID string
	Catalog     catalog.Catalog
	Source      question.Source
	Scorer      *scoring.Engine
	Clock       Clock
	// TickInterval is the wall time of one countdown second.
	TickInterval  time.Duration
	FetchTimeout  time.Duration
	ReportTimeout time.Duration
	Observer      Observer
	Reporter      Reporter
	Metrics       *Metrics
	Logger        zerolog.Logger
	// Strict panics on invariant violations instead of logging them.
	Strict bool
}

type sectionState struct {
	questions    []question.Question
	answers      []*int
	flags        []bool
	requested    bool
	materialized bool
	failed       bool
}

type fetchResult struct {
	index     int
	questions []question.Question
	err       error
	elapsed   time.Duration
}

type intent struct {
	name  string
	apply func() error
	// query intents read state without emitting a snapshot.
	query bool
	reply chan intentReply
}

type intentReply struct {
	snap Snapshot
	err  error
}

// Session owns one candidate's exam. All state is mutated by a single event
// loop goroutine; public methods submit intents to it and wait for the result.
type Session struct {
	id          string
	candidateID string
	catalog     catalog.Catalog
	source      question.Source
	scorer      *scoring.Engine
	clock       Clock
	interval    time.Duration
	fetchTO     time.Duration
	metrics     *Metrics
	logger      zerolog.Logger
	strict      bool
	emitter     *emitter

	intents chan intent
	fetched chan fetchResult
	closeC  chan struct{}
	done    chan struct{}

	closeOnce   sync.Once
	fetchCtx    context.Context
	cancelFetch context.CancelFunc

	phaseV  atomic.Value
	touched atomic.Int64

	// Owned by the event loop.
	phase         Phase
	sectionIndex  int
	questionIndex int
	remaining     int
	sections      []sectionState
	ticker        Ticker
	tickC         <-chan time.Time
	version       uint64
	startedAt     time.Time
	completedAt   time.Time
	result        *scoring.Result
	pendingReport *Report
}

// NewSession validates opts and starts the session's event loop. The session
// stays NotStarted until Start is called.
func NewSession(opts Options) (*Session, error) {
	if err := opts.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if opts.Source == nil {
		return nil, errors.New("question source is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewEngine(scoring.DefaultConfig())
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = defaultReportTimeout
	}

	cat := opts.Catalog
	cat.Sections = append([]catalog.Section(nil), cat.Sections...)

	logger := opts.Logger.With().
		Str("component", "exam_session").
		Str("session_id", opts.ID).
		Str("candidate_id", opts.CandidateID).
		Logger()

	fetchCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          opts.ID,
		candidateID: opts.CandidateID,
		catalog:     cat,
		source:      opts.Source,
		scorer:      opts.Scorer,
		clock:       opts.Clock,
		interval:    opts.TickInterval,
		fetchTO:     opts.FetchTimeout,
		metrics:     opts.Metrics,
		logger:      logger,
		strict:      opts.Strict,
		emitter:     newEmitter(opts.Observer, opts.Reporter, opts.ReportTimeout, logger),
		intents:     make(chan intent),
		fetched:     make(chan fetchResult),
		closeC:      make(chan struct{}),
		done:        make(chan struct{}),
		fetchCtx:    fetchCtx,
		cancelFetch: cancel,
		phase:       PhaseNotStarted,
		sections:    make([]sectionState, len(cat.Sections)),
	}
	s.phaseV.Store(PhaseNotStarted)
	s.touch()

	go s.run()
	return s, nil
}

func (s *Session) ID() string          { return s.id }
func (s *Session) CandidateID() string { return s.candidateID }
func (s *Session) Profile() string     { return s.catalog.Profile }

// Catalog returns the session's section list.
func (s *Session) Catalog() catalog.Catalog {
	cat := s.catalog
	cat.Sections = append([]catalog.Section(nil), cat.Sections...)
	return cat
}

// Phase returns the last committed lifecycle phase without going through the loop.
func (s *Session) Phase() Phase { return s.phaseV.Load().(Phase) }

// LastActivity is the time of the last accepted intent or state change.
func (s *Session) LastActivity() time.Time { return time.Unix(0, s.touched.Load()) }

// Done is closed once the session has been closed and its output flushed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start moves the session to the first section and requests its questions.
// The first countdown begins once those questions resolve.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, "start", false, func() error {
		switch s.phase {
		case PhaseInProgress:
			return ErrAlreadyStarted
		case PhaseCompleted:
			return ErrCompleted
		}
		s.phase = PhaseInProgress
		s.startedAt = s.clock.Now()
		s.metrics.sessionStarted()
		s.enterSection(0)
		return nil
	})
}

// SelectAnswer records optionIndex for a question of the current section,
// replacing any earlier selection.
func (s *Session) SelectAnswer(ctx context.Context, sectionID string, questionIndex, optionIndex int) (Snapshot, error) {
	return s.do(ctx, "select_answer", false, func() error {
		sec, err := s.currentFor(sectionID)
		if err != nil {
			return err
		}
		if questionIndex < 0 || questionIndex >= len(sec.questions) {
			return fmt.Errorf("%w: question %d of %d", ErrOutOfBounds, questionIndex, len(sec.questions))
		}
		options := len(sec.questions[questionIndex].Options)
		if optionIndex < 0 || optionIndex >= options {
			return fmt.Errorf("%w: option %d of %d", ErrOutOfBounds, optionIndex, options)
		}
		selected := optionIndex
		sec.answers[questionIndex] = &selected
		return nil
	})
}

// ToggleFlag flips the review flag of a question in the current section.
func (s *Session) ToggleFlag(ctx context.Context, sectionID string, questionIndex int) (Snapshot, error) {
	return s.do(ctx, "toggle_flag", false, func() error {
		sec, err := s.currentFor(sectionID)
		if err != nil {
			return err
		}
		if questionIndex < 0 || questionIndex >= len(sec.questions) {
			return fmt.Errorf("%w: question %d of %d", ErrOutOfBounds, questionIndex, len(sec.questions))
		}
		sec.flags[questionIndex] = !sec.flags[questionIndex]
		return nil
	})
}

// Navigate moves one question forward or back, clamped to the section.
func (s *Session) Navigate(ctx context.Context, dir Direction) (Snapshot, error) {
	return s.do(ctx, "navigate", false, func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		last := len(s.sections[s.sectionIndex].questions) - 1
		switch dir {
		case DirectionNext:
			if s.questionIndex < last {
				s.questionIndex++
			}
		case DirectionPrevious:
			if s.questionIndex > 0 {
				s.questionIndex--
			}
		default:
			return fmt.Errorf("%w: direction %q", ErrOutOfBounds, dir)
		}
		return nil
	})
}

// GoTo jumps to a question of the current section.
func (s *Session) GoTo(ctx context.Context, questionIndex int) (Snapshot, error) {
	return s.do(ctx, "goto", false, func() error {
		if err := s.requireInProgress(); err != nil {
			return err
		}
		n := len(s.sections[s.sectionIndex].questions)
		if questionIndex < 0 || questionIndex >= n {
			return fmt.Errorf("%w: question %d of %d", ErrOutOfBounds, questionIndex, n)
		}
		s.questionIndex = questionIndex
		return nil
	})
}

// SubmitSection ends the current section. sectionID must name it; a submit
// for a section already left is stale.
func (s *Session) SubmitSection(ctx context.Context, sectionID string) (Snapshot, error) {
	return s.do(ctx, "submit_section", false, func() error {
		if _, err := s.currentFor(sectionID); err != nil {
			return err
		}
		s.advance(TriggerManual)
		return nil
	})
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, "snapshot", true, func() error { return nil })
}

// Close abandons the session. The timer and pending fetches are cancelled,
// queued output is flushed and no report is produced unless the session had
// already completed. Close is idempotent and waits for the loop to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closeC) })
	<-s.done
}

func (s *Session) do(ctx context.Context, name string, query bool, apply func() error) (Snapshot, error) {
	in := intent{name: name, apply: apply, query: query, reply: make(chan intentReply, 1)}
	select {
	case s.intents <- in:
	case <-s.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	// Once accepted the intent is applied, so its outcome is reported even if
	// ctx ends meanwhile.
	select {
	case r := <-in.reply:
		return r.snap, r.err
	case <-s.done:
		select {
		case r := <-in.reply:
			return r.snap, r.err
		default:
			return Snapshot{}, ErrClosed
		}
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.closeC:
			s.teardown()
			return
		case in := <-s.intents:
			in.reply <- s.handle(in)
		case res := <-s.fetched:
			s.applyFetch(res)
		case <-s.tickC:
			s.tick()
		}
	}
}

func (s *Session) handle(in intent) intentReply {
	if err := in.apply(); err != nil {
		if IsRejection(err) {
			s.metrics.intentRejected(err)
			s.logger.Debug().Err(err).Str("intent", in.name).Msg("intent rejected")
		}
		return intentReply{snap: s.snapshot(), err: err}
	}
	if in.query {
		return intentReply{snap: s.snapshot()}
	}
	return intentReply{snap: s.commit()}
}

func (s *Session) teardown() {
	s.stopTimer()
	s.cancelFetch()
	s.emitter.close()
	s.logger.Debug().Str("phase", string(s.phase)).Msg("session closed")
}

// commit publishes the current state, followed by the report if the last
// transition completed the exam.
func (s *Session) commit() Snapshot {
	s.version++
	s.phaseV.Store(s.phase)
	s.touch()

	snap := s.snapshot()
	s.emitter.push(event{snapshot: &snap})
	if s.pendingReport != nil {
		s.emitter.push(event{report: s.pendingReport})
		s.pendingReport = nil
	}
	return snap
}

func (s *Session) touch() {
	s.touched.Store(s.clock.Now().UnixNano())
}

func (s *Session) requireInProgress() error {
	switch s.phase {
	case PhaseNotStarted:
		return ErrNotStarted
	case PhaseCompleted:
		return ErrCompleted
	}
	return nil
}

// currentFor resolves sectionID to the current section, rejecting intents
// aimed at sections already left or not yet reached.
func (s *Session) currentFor(sectionID string) (*sectionState, error) {
	if err := s.requireInProgress(); err != nil {
		return nil, err
	}
	idx := s.catalog.Index(sectionID)
	switch {
	case idx < 0:
		return nil, fmt.Errorf("%w: unknown section %q", ErrOutOfBounds, sectionID)
	case idx < s.sectionIndex:
		return nil, fmt.Errorf("%w: section %q already ended", ErrStaleIntent, sectionID)
	case idx > s.sectionIndex:
		return nil, fmt.Errorf("%w: section %q not reached", ErrOutOfBounds, sectionID)
	}
	return &s.sections[idx], nil
}

func (s *Session) enterSection(i int) {
	s.sectionIndex = i
	s.questionIndex = 0
	s.remaining = s.catalog.Sections[i].DurationSeconds
	s.requestFetch(i)
	s.requestFetch(i + 1)

	// Later sections run on the paper clock: their countdown starts at
	// advance even while questions are still loading.
	if i > 0 || s.sections[i].materialized {
		s.startTimer()
	}
}

func (s *Session) tick() {
	if s.phase != PhaseInProgress || s.ticker == nil || s.remaining <= 0 {
		s.violation("tick delivered with phase %s and %d seconds remaining", s.phase, s.remaining)
		return
	}
	s.remaining--
	if s.remaining == 0 {
		s.advance(TriggerTimeout)
	}
	s.commit()
}

// advance is the single transition shared by manual submits and timeouts.
func (s *Session) advance(trigger Trigger) {
	s.stopTimer()
	from := s.sectionIndex
	s.seal(from)

	if from == len(s.catalog.Sections)-1 {
		s.complete(trigger)
		return
	}

	s.enterSection(from + 1)
	s.metrics.sectionAdvanced(trigger)
	s.logger.Info().
		Str("from", s.catalog.Sections[from].ID).
		Str("to", s.catalog.Sections[from+1].ID).
		Str("trigger", string(trigger)).
		Msg("section advanced")
	s.emitter.push(event{change: &SectionChange{
		SessionID:     s.id,
		CandidateID:   s.candidateID,
		FromIndex:     from,
		ToIndex:       from + 1,
		FromSectionID: s.catalog.Sections[from].ID,
		ToSectionID:   s.catalog.Sections[from+1].ID,
		Trigger:       trigger,
		At:            s.clock.Now(),
	}})
}

func (s *Session) complete(trigger Trigger) {
	if s.phase == PhaseCompleted {
		s.violation("completion requested twice")
		return
	}
	s.phase = PhaseCompleted
	s.completedAt = s.clock.Now()
	s.cancelFetch()

	inputs := make([]scoring.SectionInput, len(s.catalog.Sections))
	for i, section := range s.catalog.Sections {
		inputs[i] = scoring.SectionInput{
			SectionID: section.ID,
			Bucket:    section.Bucket,
			Questions: s.sections[i].questions,
			Answers:   s.sections[i].answers,
		}
	}
	result := s.scorer.Score(inputs)
	s.result = &result
	s.pendingReport = &Report{
		SessionID:   s.id,
		CandidateID: s.candidateID,
		Profile:     s.catalog.Profile,
		Trigger:     trigger,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Result:      result,
	}
	s.metrics.sessionCompleted(trigger)
	s.logger.Info().
		Str("trigger", string(trigger)).
		Int("composite", result.Composite).
		Msg("exam completed")
}

// seal freezes a section. A section left before its questions arrived keeps
// zero questions and any late fetch result is discarded.
func (s *Session) seal(i int) {
	sec := &s.sections[i]
	if !sec.materialized {
		sec.materialized = true
		sec.questions = nil
		sec.answers = nil
		sec.flags = nil
	}
}

func (s *Session) startTimer() {
	s.stopTimer()
	s.ticker = s.clock.NewTicker(s.interval)
	s.tickC = s.ticker.C()
}

func (s *Session) stopTimer() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = nil
	s.tickC = nil
}

func (s *Session) requestFetch(i int) {
	if i >= len(s.sections) || s.sections[i].requested {
		return
	}
	s.sections[i].requested = true
	section := s.catalog.Sections[i]

	go func() {
		ctx, cancel := context.WithTimeout(s.fetchCtx, s.fetchTO)
		defer cancel()

		started := time.Now()
		questions, err := s.source.FetchQuestions(ctx, section)
		res := fetchResult{index: i, questions: questions, err: err, elapsed: time.Since(started)}

		select {
		case s.fetched <- res:
		case <-s.fetchCtx.Done():
		}
	}()
}

func (s *Session) applyFetch(res fetchResult) {
	if res.index < 0 || res.index >= len(s.sections) {
		s.violation("fetch result for section %d of %d", res.index, len(s.sections))
		return
	}
	section := s.catalog.Sections[res.index]
	sec := &s.sections[res.index]
	if sec.materialized {
		s.logger.Debug().Str("section_id", section.ID).Msg("discarding late question fetch")
		return
	}

	outcome := "ok"
	questions := make([]question.Question, 0, len(res.questions))
	for _, q := range res.questions {
		if err := q.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("section_id", section.ID).Str("question_id", q.ID).Msg("dropping invalid question")
			continue
		}
		questions = append(questions, q.Clone())
	}
	switch {
	case res.err != nil:
		outcome = "error"
		sec.failed = true
		s.logger.Warn().Err(res.err).Str("section_id", section.ID).Msg("question fetch failed")
	case len(questions) == 0:
		outcome = "empty"
	}
	s.metrics.fetchObserved(outcome, res.elapsed)

	sec.materialized = true
	sec.questions = questions
	sec.answers = make([]*int, len(questions))
	sec.flags = make([]bool, len(questions))

	if res.index != s.sectionIndex || s.phase != PhaseInProgress {
		return
	}
	if s.ticker == nil {
		s.startTimer()
	}
	s.commit()
}

func (s *Session) violation(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...)
	s.logger.Error().Err(err).Msg("dropping event")
	if s.strict {
		panic(err)
	}
}

func (s *Session) snapshot() Snapshot {
	section := s.catalog.Sections[s.sectionIndex]
	sec := s.sections[s.sectionIndex]

	snap := Snapshot{
		SessionID:             s.id,
		CandidateID:           s.candidateID,
		Profile:               s.catalog.Profile,
		Version:               s.version,
		Phase:                 s.phase,
		SectionIndex:          s.sectionIndex,
		SectionCount:          len(s.catalog.Sections),
		SectionID:             section.ID,
		SectionName:           section.DisplayName,
		ExpectedQuestionCount: section.QuestionCount,
		QuestionIndex:         s.questionIndex,
		TimeRemainingSeconds:  s.remaining,
		TimerRunning:          s.ticker != nil,
		Loading:               s.phase == PhaseInProgress && !sec.materialized,
		FetchFailed:           sec.failed,
		Result:                s.result,
	}
	if s.phase == PhaseNotStarted {
		snap.TimeRemainingSeconds = section.DurationSeconds
	}

	snap.Questions = make([]question.Question, len(sec.questions))
	for i, q := range sec.questions {
		snap.Questions[i] = q.Clone()
	}
	snap.Answers = make([]*int, len(sec.answers))
	for i, a := range sec.answers {
		if a != nil {
			v := *a
			snap.Answers[i] = &v
		}
	}
	snap.Flags = append([]bool{}, sec.flags...)
	return snap
}
