package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
)

type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	ttls     map[string]time.Duration
	released []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}, ttls: map[string]time.Duration{}}
}

func (l *memLocker) Lock(_ context.Context, candidateID string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[candidateID] {
		return nil, ErrLockHeld
	}
	l.held[candidateID] = true
	l.ttls[candidateID] = ttl
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, candidateID)
		l.released = append(l.released, candidateID)
		return nil
	}, nil
}

type recordingPrefetcher struct {
	mu       sync.Mutex
	sections []string
}

func (p *recordingPrefetcher) Prefetch(sections ...catalog.Section) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sections {
		p.sections = append(p.sections, s.ID)
	}
	return len(sections)
}

type managerFixture struct {
	manager    *Manager
	clock      *fakeClock
	locker     *memLocker
	prefetcher *recordingPrefetcher
	metrics    *Metrics
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		clock:      newFakeClock(),
		locker:     newMemLocker(),
		prefetcher: &recordingPrefetcher{},
		metrics:    NewMetrics(prometheus.NewRegistry()),
	}
	f.manager = NewManager(ManagerOptions{
		Source:     bank{},
		Locker:     f.locker,
		Prefetcher: f.prefetcher,
		Metrics:    f.metrics,
		Clock:      f.clock,
		TTL:        10 * time.Minute,
		Strict:     true,
	}, zerolog.Nop())
	t.Cleanup(func() { f.manager.Close(context.Background()) })
	return f
}

func TestManagerCreate(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, " cand-1 ", "")
	require.NoError(t, err)
	assert.Equal(t, "cand-1", session.CandidateID())
	assert.Equal(t, catalog.ProfileSAT, session.Profile())
	assert.Equal(t, PhaseNotStarted, session.Phase())

	got, err := f.manager.Get(session.ID())
	require.NoError(t, err)
	assert.Same(t, session, got)
	byCandidate, ok := f.manager.ForCandidate("cand-1")
	require.True(t, ok)
	assert.Same(t, session, byCandidate)

	sat := catalog.SAT()
	assert.Equal(t, sat.TotalDuration()+10*time.Minute, f.locker.ttls["cand-1"])
	assert.Equal(t, []string{"math-no-calc", "math-calc"}, f.prefetcher.sections)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.active))
}

func TestManagerCreateRejections(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "", "")
	assert.ErrorIs(t, err, ErrMissingCandidate)

	_, err = f.manager.Create(ctx, "cand-1", "gre")
	assert.ErrorIs(t, err, catalog.ErrUnknownProfile)

	_, err = f.manager.Create(ctx, "cand-1", "")
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, "cand-1", "")
	assert.ErrorIs(t, err, ErrLockHeld)

	// Another instance holds the lock.
	f.locker.held["cand-2"] = true
	_, err = f.manager.Create(ctx, "cand-2", "")
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, 1, f.manager.Len())
}

func TestManagerReplacesCompletedSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	first, err := f.manager.Create(ctx, "cand-1", "")
	require.NoError(t, err)
	_, err = first.Start(ctx)
	require.NoError(t, err)
	for _, section := range catalog.SAT().Sections {
		_, err = first.SubmitSection(ctx, section.ID)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseCompleted, first.Phase())

	second, err := f.manager.Create(ctx, "cand-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, []string{"cand-1"}, f.locker.released)

	_, err = f.manager.Get(first.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	<-first.Done()
}

func TestManagerRemove(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	session, err := f.manager.Create(ctx, "cand-1", "")
	require.NoError(t, err)

	assert.True(t, f.manager.Remove(ctx, session.ID()))
	assert.False(t, f.manager.Remove(ctx, session.ID()))
	assert.Zero(t, f.manager.Len())
	assert.Zero(t, testutil.ToFloat64(f.metrics.active))

	_, err = session.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManagerReap(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	idle, err := f.manager.Create(ctx, "idle", "")
	require.NoError(t, err)
	running, err := f.manager.Create(ctx, "running", "")
	require.NoError(t, err)
	_, err = running.Start(ctx)
	require.NoError(t, err)

	assert.Zero(t, f.manager.Reap(ctx), "nothing is idle yet")

	f.clock.Advance(11 * time.Minute)
	assert.Equal(t, 1, f.manager.Reap(ctx))

	_, err = f.manager.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.manager.Get(running.ID())
	assert.NoError(t, err, "sessions in progress are left to their timers")
}
