package reconcile

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Guard hands out at most one Acquire per key within its TTL.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// MemoryGuard is a per-process guard.
type MemoryGuard struct {
	mu   sync.Mutex
	seen *lru.LRU[string, struct{}]
}

func NewMemoryGuard(size int, ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{seen: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen.Peek(key); ok {
		return false, nil
	}
	g.seen.Add(key, struct{}{})
	return true, nil
}

// RedisGuard shares the guard across instances with SETNX.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.rdb.SetNX(ctx, "reconcile:"+key, 1, g.ttl).Result()
}
