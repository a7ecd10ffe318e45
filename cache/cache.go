// Package cache provides the weather data cache: an in-memory store with
// TTL, gzip compression, LRU eviction and memory accounting, plus an
// optional Redis-backed implementation for shared deployments.
package cache

import (
	"context"
	"time"
)

// Cache defines the operations the weather service needs from a cache
// backend. Values are opaque byte payloads owned by the cache.
type Cache interface {
	// Get returns the value for key when present and fresh. Expired or
	// undecodable entries report a miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// GetStale returns the value for an expired entry that is still within
	// the acceptable-staleness window, along with its age since creation.
	GetStale(ctx context.Context, key string) ([]byte, time.Duration, bool)

	// Set stores value under key with the given TTL, replacing any
	// existing entry. A zero TTL means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, opts ...SetOption)

	// Delete removes the entry for key, reporting whether it was present.
	Delete(ctx context.Context, key string) bool

	// Exists reports whether a fresh entry for key is present.
	Exists(ctx context.Context, key string) bool

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Stats returns counters tracked for observability only.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats holds cache counters. They never affect correctness.
type Stats struct {
	Backend      string
	Entries      int
	SizeBytes    int64
	Hits         int64
	Misses       int64
	StaleHits    int64
	Evictions    int64
	Expirations  int64
	Compressions int64
	BytesSaved   int64
}

// HitRate returns the fraction of gets served from cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type setOptions struct {
	tags     []string
	priority int
}

// SetOption customizes a Set call.
type SetOption func(*setOptions)

// WithTags attaches tags to the entry for grouped invalidation.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) {
		o.tags = tags
	}
}

// WithPriority records an informational priority on the entry. Eviction is
// strictly LRU; priority is stored but not consulted.
func WithPriority(priority int) SetOption {
	return func(o *setOptions) {
		o.priority = priority
	}
}
