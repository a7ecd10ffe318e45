package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"weatherdash.app/metrics"
)

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	StaleAcceptable time.Duration
}

// redisEnvelope wraps the cached payload with freshness metadata so stale
// reads work the same way as in the memory store. The Redis key expiry is
// the staleness horizon; logical TTL is evaluated from the envelope.
type redisEnvelope struct {
	Payload   []byte        `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl_ns"` // 0 means never expires
}

// RedisCache is a Cache backed by Redis, for deployments where several
// dashboard instances share one weather cache.
type RedisCache struct {
	client *redis.Client
	stale  time.Duration

	hits      int64
	misses    int64
	staleHits int64

	promMetrics *metrics.CacheMetrics
}

func NewRedisCache(cfg *RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	stale := cfg.StaleAcceptable
	if stale <= 0 {
		stale = 2 * time.Hour
	}

	slog.Info("redis cache connected", "addr", cfg.Addr, "db", cfg.DB)

	return &RedisCache{
		client:      client,
		stale:       stale,
		promMetrics: metrics.NewCacheMetrics("redis"),
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	env, ok := r.fetch(ctx, key)
	if !ok || r.expired(env) {
		atomic.AddInt64(&r.misses, 1)
		r.promMetrics.RecordMiss()
		return nil, false
	}

	atomic.AddInt64(&r.hits, 1)
	r.promMetrics.RecordHit()
	return env.Payload, true
}

func (r *RedisCache) GetStale(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	env, ok := r.fetch(ctx, key)
	if !ok || !r.expired(env) {
		return nil, 0, false
	}

	age := time.Since(env.CreatedAt)
	if age > r.stale {
		return nil, 0, false
	}

	atomic.AddInt64(&r.staleHits, 1)
	return env.Payload, age, true
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, _ ...SetOption) {
	if value == nil {
		return
	}

	env := redisEnvelope{
		Payload:   value,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		env.TTL = ttl
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("redis marshal error", "error", err, "key", key)
		return
	}

	// Keep the key alive through the staleness window so expired entries
	// can still serve degraded reads.
	expiration := r.stale
	if ttl > expiration {
		expiration = ttl
	}
	if ttl == 0 {
		expiration = 0
	}

	if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
		slog.Error("redis set error", "error", err, "key", key)
	}
}

func (r *RedisCache) Delete(ctx context.Context, key string) bool {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		slog.Error("redis delete error", "error", err, "key", key)
		return false
	}
	return n > 0
}

func (r *RedisCache) Exists(ctx context.Context, key string) bool {
	env, ok := r.fetch(ctx, key)
	return ok && !r.expired(env)
}

func (r *RedisCache) Clear(ctx context.Context) {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		slog.Error("redis clear error", "error", err)
	}
}

func (r *RedisCache) Stats() Stats {
	return Stats{
		Backend:   "redis",
		Hits:      atomic.LoadInt64(&r.hits),
		Misses:    atomic.LoadInt64(&r.misses),
		StaleHits: atomic.LoadInt64(&r.staleHits),
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) fetch(ctx context.Context, key string) (*redisEnvelope, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("redis get error", "error", err, "key", key)
		}
		return nil, false
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		slog.Error("redis unmarshal error, dropping entry", "error", err, "key", key)
		r.client.Del(ctx, key)
		return nil, false
	}
	return &env, true
}

func (r *RedisCache) expired(env *redisEnvelope) bool {
	if env.TTL <= 0 {
		return false
	}
	return time.Since(env.CreatedAt) >= env.TTL
}
