package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/db"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	"github.com/gokatarajesh/exam-engine/internal/exam"
	"github.com/gokatarajesh/exam-engine/internal/exam/scoring"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

type published struct {
	channel string
	event   Event
}

// fakeRedis implements the Publish/Set/Get subset used by this package.
type fakeRedis struct {
	mu        sync.Mutex
	err       error
	published []published
	values    map[string]string
	ttls      map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var evt Event
	if err := json.Unmarshal(message.([]byte), &evt); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	f.published = append(f.published, published{channel: channel, event: evt})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) events() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type failingReporter struct{ calls int }

func (r *failingReporter) Report(context.Context, exam.Report) error {
	r.calls++
	return errors.New("sink down")
}

func sampleReport() exam.Report {
	sel := 1
	return exam.Report{
		SessionID:   "s1",
		CandidateID: "cand-1",
		Profile:     "sat",
		Trigger:     exam.TriggerTimeout,
		StartedAt:   time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC),
		CompletedAt: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
		Result: scoring.Result{
			Buckets:   []scoring.BucketScore{{Bucket: "reading", Correct: 1, Total: 1, Scaled: 800}},
			Composite: 1200,
			Breakdown: []scoring.BreakdownRow{{SectionID: "reading", Bucket: "reading", QuestionID: "q1", Selected: &sel, CorrectOptionIndex: 1, Correct: true}},
		},
	}
}

func TestFanoutJoinsReporterErrors(t *testing.T) {
	rdb := newFakeRedis()
	failing := &failingReporter{}
	pub := NewPublisher(rdb, "", zerolog.Nop())
	fan := NewFanout(zerolog.Nop()).
		Observe(pub, nil).
		ReportTo(failing, nil, pub)

	err := fan.Report(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 1, failing.calls)
	// A failing sink does not stop later ones.
	require.Len(t, rdb.events(), 1)
	assert.Equal(t, EventExamCompleted, rdb.events()[0].event.Type)
}

func TestPublisherEvents(t *testing.T) {
	rdb := newFakeRedis()
	pub := NewPublisher(rdb, "custom:events", zerolog.Nop())
	ctx := context.Background()

	pub.OnSnapshot(ctx, exam.Snapshot{SessionID: "s1"})
	pub.OnSectionChange(ctx, exam.SectionChange{
		SessionID: "s1", CandidateID: "cand-1",
		FromIndex: 0, ToIndex: 1, FromSectionID: "reading", ToSectionID: "writing",
		Trigger: exam.TriggerTimeout,
	})
	require.NoError(t, pub.Report(ctx, sampleReport()))

	events := rdb.events()
	require.Len(t, events, 2)
	assert.Equal(t, "custom:events", events[0].channel)
	assert.Equal(t, EventSectionChanged, events[0].event.Type)
	assert.Equal(t, "writing", events[0].event.ToSectionID)
	assert.Equal(t, "timeout", events[0].event.Trigger)
	require.NotNil(t, events[1].event.Composite)
	assert.Equal(t, 1200, *events[1].event.Composite)

	rdb.err = errors.New("connection refused")
	assert.Error(t, pub.Report(ctx, sampleReport()))
}

func TestSnapshotStoreRoundTripHidesAnswerKey(t *testing.T) {
	rdb := newFakeRedis()
	store := NewSnapshotStore(rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	store.OnSnapshot(ctx, exam.Snapshot{
		SessionID: "s1",
		Phase:     exam.PhaseInProgress,
		SectionID: "reading",
		Questions: []question.Question{{ID: "q1", Text: "t", Options: []string{"a", "b"}, CorrectOptionIndex: 1}},
	})
	assert.NotContains(t, rdb.values["exam:snapshot:s1"], "correct_option_index")
	assert.Equal(t, time.Minute, rdb.ttls["exam:snapshot:s1"])

	got, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "reading", got.SectionID)
	assert.Equal(t, string(exam.PhaseInProgress), got.Phase)

	rdb.values["exam:snapshot:bad"] = "{"
	_, _, err = store.Get(ctx, "bad")
	assert.Error(t, err)
}

func openSQLite(t *testing.T) *repository.Queries {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite, nil))
	return repository.New(conn)
}

func TestRecorderPersistsResultOnce(t *testing.T) {
	q := openSQLite(t)
	results := repository.NewResultRepository(q)
	events := repository.NewEventRepository(q)
	rec := NewRecorder(results, events, zerolog.Nop())
	ctx := context.Background()

	rep := sampleReport()
	require.NoError(t, rec.Report(ctx, rep))
	rep.Result.Composite = 400
	require.NoError(t, rec.Report(ctx, rep))

	stored, err := results.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1200, stored.Composite)
	assert.Equal(t, "timeout", stored.Trigger)
	assert.True(t, rep.CompletedAt.Equal(stored.CompletedAt))

	var breakdown []scoring.BreakdownRow
	require.NoError(t, json.Unmarshal(stored.Breakdown, &breakdown))
	require.Len(t, breakdown, 1)
	assert.True(t, breakdown[0].Correct)
}

func TestSessionOutputReachesEverySink(t *testing.T) {
	q := openSQLite(t)
	results := repository.NewResultRepository(q)
	events := repository.NewEventRepository(q)
	rdb := newFakeRedis()
	store := NewSnapshotStore(rdb, 0, zerolog.Nop())
	pub := NewPublisher(rdb, "", zerolog.Nop())
	recorder := NewRecorder(results, events, zerolog.Nop())
	fan := NewFanout(zerolog.Nop()).
		Observe(store, pub, recorder).
		ReportTo(pub, recorder)

	cat := catalog.Catalog{Profile: "mini", Sections: []catalog.Section{
		{ID: "reading", DisplayName: "Reading", Bucket: catalog.BucketReading, DurationSeconds: 60, QuestionCount: 1},
		{ID: "math", DisplayName: "Math", Bucket: catalog.BucketMath, DurationSeconds: 60, QuestionCount: 1},
	}}
	src := question.NewStaticSource(map[string][]question.Question{
		"reading": {{ID: "r1", Text: "r", Options: []string{"a", "b"}, CorrectOptionIndex: 1}},
		"math":    {{ID: "m1", Text: "m", Options: []string{"a", "b"}, CorrectOptionIndex: 0}},
	})
	session, err := exam.NewSession(exam.Options{
		CandidateID:  "cand-1",
		Catalog:      cat,
		Source:       src,
		TickInterval: time.Hour,
		Observer:     fan,
		Reporter:     fan,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	ctx := context.Background()

	_, err = session.Start(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := session.Snapshot(ctx)
		return err == nil && !snap.Loading
	}, 2*time.Second, 5*time.Millisecond)
	_, err = session.SelectAnswer(ctx, "reading", 0, 1)
	require.NoError(t, err)
	_, err = session.SubmitSection(ctx, "reading")
	require.NoError(t, err)
	_, err = session.SubmitSection(ctx, "math")
	require.NoError(t, err)

	// The recorder is the last sink, so its completion event means every
	// other sink has run.
	var logged []repository.ExamEvent
	require.Eventually(t, func() bool {
		logged, err = events.List(ctx, session.ID())
		return err == nil && len(logged) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, EventSectionChanged, logged[0].Type)
	assert.Equal(t, EventExamCompleted, logged[1].Type)

	stored, err := results.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, "manual", stored.Trigger)
	assert.Equal(t, "mini", stored.Profile)

	published := rdb.events()
	require.Len(t, published, 2)
	assert.Equal(t, DefaultChannel, published[0].channel)
	assert.Equal(t, "math", published[0].event.ToSectionID)
	assert.Equal(t, EventExamCompleted, published[1].event.Type)

	mirrored, ok, err := store.Get(ctx, session.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(exam.PhaseCompleted), mirrored.Phase)
	require.NotEmpty(t, mirrored.Questions)
	assert.NotNil(t, mirrored.Questions[0].CorrectOptionIndex)
}
