package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// SectionCache stores materialized question sets keyed by section and size.
type SectionCache interface {
	Get(ctx context.Context, sectionID string, count int) ([]Question, error)
	Set(ctx context.Context, sectionID string, count int, qs []Question) error
}

// Cache provides Redis-backed section caching to offload bank and generator calls.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SectionCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(sectionID string, count int) string {
	return fmt.Sprintf("questions:%s:%d", sectionID, count)
}

// Get returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, sectionID string, count int) ([]Question, error) {
	data, err := c.client.Get(ctx, cacheKey(sectionID, count)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var qs []Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (c *Cache) Set(ctx context.Context, sectionID string, count int, qs []Question) error {
	data, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(sectionID, count), data, c.ttl).Err()
}
