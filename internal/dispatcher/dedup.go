package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers update ids for a window. Seen reports whether id was
// already recorded and records it otherwise.
type Deduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

// MemoryDeduper is enough for a single process.
type MemoryDeduper struct {
	seen *cache.Cache
}

func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &MemoryDeduper{seen: cache.New(window, window)}
}

func (m *MemoryDeduper) Seen(_ context.Context, updateID int64) (bool, error) {
	if err := m.seen.Add(strconv.FormatInt(updateID, 10), struct{}{}, cache.DefaultExpiration); err != nil {
		return true, nil
	}
	return false, nil
}

// RedisDeduper shares the window between replicas behind one webhook.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RedisDeduper{client: client, window: window, prefix: "bot:update:"}
}

func (r *RedisDeduper) key(updateID int64) string {
	return r.prefix + strconv.FormatInt(updateID, 10)
}

func (r *RedisDeduper) Seen(ctx context.Context, updateID int64) (bool, error) {
	stored, err := r.client.SetNX(ctx, r.key(updateID), 1, r.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !stored, nil
}
