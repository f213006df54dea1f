package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/exam/scoring"
	"github.com/gokatarajesh/exam-engine/internal/question"
)

var (
	ErrSessionNotFound  = errors.New("exam session not found")
	ErrMissingCandidate = errors.New("candidate id is required")
)

// Prefetcher warms question caches ahead of time.
type Prefetcher interface {
	Prefetch(sections ...catalog.Section) int
}

// ManagerOptions configures the session registry. Zero values fall back to
// the Session defaults.
type ManagerOptions struct {
	DefaultProfile string
	Source         question.Source
	Scorer         *scoring.Engine
	Prefetcher     Prefetcher
	Locker         Locker
	Observer       Observer
	Reporter       Reporter
	Metrics        *Metrics
	Clock          Clock
	TickInterval   time.Duration
	FetchTimeout   time.Duration
	ReportTimeout  time.Duration
	// TTL is how long a session that is not in progress is kept after its
	// last activity.
	TTL    time.Duration
	Strict bool
}

type entry struct {
	session *Session
	unlock  func(context.Context) error
}

// Manager owns every live session on this instance.
type Manager struct {
	opts   ManagerOptions
	logger zerolog.Logger

	mu          sync.RWMutex
	sessions    map[string]*entry
	byCandidate map[string]string
}

func NewManager(opts ManagerOptions, logger zerolog.Logger) *Manager {
	if opts.DefaultProfile == "" {
		opts.DefaultProfile = catalog.ProfileSAT
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	return &Manager{
		opts:        opts,
		logger:      logger.With().Str("component", "exam_manager").Logger(),
		sessions:    make(map[string]*entry),
		byCandidate: make(map[string]string),
	}
}

// Create registers a NotStarted session for the candidate. A candidate with a
// session that has not completed gets ErrLockHeld; a completed one is replaced.
func (m *Manager) Create(ctx context.Context, candidateID, profile string) (*Session, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, ErrMissingCandidate
	}
	if profile == "" {
		profile = m.opts.DefaultProfile
	}
	cat, err := catalog.Lookup(profile)
	if err != nil {
		return nil, err
	}

	if prev, ok := m.ForCandidate(candidateID); ok {
		if prev.Phase() != PhaseCompleted {
			return nil, fmt.Errorf("%w: session %s", ErrLockHeld, prev.ID())
		}
		m.Remove(ctx, prev.ID())
	}

	unlock := func(context.Context) error { return nil }
	if m.opts.Locker != nil {
		ttl := cat.TotalDuration() + m.opts.TTL
		if unlock, err = m.opts.Locker.Lock(ctx, candidateID, ttl); err != nil {
			return nil, err
		}
	}

	session, err := NewSession(Options{
		CandidateID:   candidateID,
		Catalog:       cat,
		Source:        m.opts.Source,
		Scorer:        m.opts.Scorer,
		Clock:         m.opts.Clock,
		TickInterval:  m.opts.TickInterval,
		FetchTimeout:  m.opts.FetchTimeout,
		ReportTimeout: m.opts.ReportTimeout,
		Observer:      m.opts.Observer,
		Reporter:      m.opts.Reporter,
		Metrics:       m.opts.Metrics,
		Logger:        m.logger,
		Strict:        m.opts.Strict,
	})
	if err != nil {
		_ = unlock(ctx)
		return nil, err
	}

	m.mu.Lock()
	if id, taken := m.byCandidate[candidateID]; taken {
		m.mu.Unlock()
		session.Close()
		_ = unlock(ctx)
		return nil, fmt.Errorf("%w: session %s", ErrLockHeld, id)
	}
	m.sessions[session.ID()] = &entry{session: session, unlock: unlock}
	m.byCandidate[candidateID] = session.ID()
	m.mu.Unlock()

	m.opts.Metrics.sessionAdded()
	// Sessions fetch their current and next section themselves.
	if m.opts.Prefetcher != nil && len(cat.Sections) > 2 {
		m.opts.Prefetcher.Prefetch(cat.Sections[2:]...)
	}

	m.logger.Info().
		Str("session_id", session.ID()).
		Str("candidate_id", candidateID).
		Str("profile", cat.Profile).
		Msg("exam session created")
	return session, nil
}

// Get returns a registered session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// ForCandidate returns the candidate's registered session, if any.
func (m *Manager) ForCandidate(candidateID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCandidate[candidateID]
	if !ok {
		return nil, false
	}
	return m.sessions[id].session, true
}

// Len reports the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove closes and forgets a session. Closing abandons an unfinished exam.
func (m *Manager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.byCandidate[e.session.CandidateID()] == id {
			delete(m.byCandidate, e.session.CandidateID())
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	e.session.Close()
	if err := e.unlock(ctx); err != nil {
		m.logger.Warn().Err(err).Str("session_id", id).Msg("failed to release candidate lock")
	}
	m.opts.Metrics.sessionRemoved()
	return true
}

// Reap removes sessions that are not in progress and have been idle longer
// than the TTL. It returns the number removed.
func (m *Manager) Reap(ctx context.Context) int {
	now := m.opts.Clock.Now()

	m.mu.RLock()
	var expired []string
	for id, e := range m.sessions {
		if e.session.Phase() == PhaseInProgress {
			continue
		}
		if now.Sub(e.session.LastActivity()) > m.opts.TTL {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if m.Remove(ctx, id) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("reaped idle exam sessions")
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// Close removes every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Remove(ctx, id)
	}
}
