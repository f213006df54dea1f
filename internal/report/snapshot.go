package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/exam"
	ws "github.com/gokatarajesh/exam-engine/pkg/http/ws"
)

type snapshotClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

var (
	_ exam.Observer       = (*SnapshotStore)(nil)
	_ exam.SnapshotMirror = (*SnapshotStore)(nil)
)

// SnapshotStore mirrors the latest public snapshot of every session to Redis
// so any instance can answer a reconnecting client.
type SnapshotStore struct {
	redis  snapshotClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSnapshotStore creates a mirror whose keys expire after ttl (6h when unset).
func NewSnapshotStore(redis snapshotClient, ttl time.Duration, logger zerolog.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &SnapshotStore{
		redis:  redis,
		ttl:    ttl,
		logger: logger.With().Str("component", "snapshot_store").Logger(),
	}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("exam:snapshot:%s", sessionID)
}

func (s *SnapshotStore) OnSnapshot(ctx context.Context, snap exam.Snapshot) {
	if err := s.Save(ctx, exam.ToPayload(snap)); err != nil {
		s.logger.Warn().Err(err).Str("session_id", snap.SessionID).Msg("failed to mirror snapshot")
	}
}

func (s *SnapshotStore) OnSectionChange(context.Context, exam.SectionChange) {}

// Save writes a snapshot payload. Payloads are already stripped of the
// answer key until completion.
func (s *SnapshotStore) Save(ctx context.Context, payload ws.SnapshotPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.redis.Set(ctx, snapshotKey(payload.SessionID), data, s.ttl).Err()
}

// Get returns the mirrored snapshot. ok is false when none is stored.
func (s *SnapshotStore) Get(ctx context.Context, sessionID string) (ws.SnapshotPayload, bool, error) {
	data, err := s.redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ws.SnapshotPayload{}, false, nil
	}
	if err != nil {
		return ws.SnapshotPayload{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var payload ws.SnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ws.SnapshotPayload{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return payload, true, nil
}
