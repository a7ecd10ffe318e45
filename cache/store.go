package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"weatherdash.app/metrics"
)

// StoreOptions configures the in-memory store.
type StoreOptions struct {
	MaxEntries           int
	MaxBytes             int64
	CompressionThreshold int // bytes; 0 disables compression
	EvictionFraction     float64
	StaleAcceptable      time.Duration
	CleanupInterval      time.Duration
}

// DefaultStoreOptions returns the store defaults used by the dashboard.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxEntries:           10000,
		MaxBytes:             100 * 1024 * 1024,
		CompressionThreshold: 1024,
		EvictionFraction:     0.1,
		StaleAcceptable:      2 * time.Hour,
		CleanupInterval:      5 * time.Minute,
	}
}

type entry struct {
	key         string
	value       []byte
	compressed  bool
	createdAt   time.Time
	accessedAt  time.Time
	expiresAt   time.Time // zero means never expires
	accessCount int64
	size        int64
	priority    int
	tags        []string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (e *entry) age(now time.Time) time.Duration {
	return now.Sub(e.createdAt)
}

// Store is an in-memory cache with TTL, gzip compression above a size
// threshold, strict LRU eviction, and byte/entry capacity accounting. A
// single mutex guards all read and mutation paths.
type Store struct {
	opts StoreOptions

	mu         sync.Mutex
	elements   map[string]*list.Element
	lru        *list.List // front = most recently used
	totalBytes int64

	hits         int64
	misses       int64
	staleHits    int64
	evictions    int64
	expirations  int64
	compressions int64
	bytesSaved   int64

	promMetrics *metrics.CacheMetrics

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewStore creates a store and starts its background expiry sweep.
func NewStore(opts StoreOptions) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultStoreOptions().MaxEntries
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultStoreOptions().MaxBytes
	}
	if opts.EvictionFraction <= 0 || opts.EvictionFraction > 1 {
		opts.EvictionFraction = DefaultStoreOptions().EvictionFraction
	}
	if opts.StaleAcceptable <= 0 {
		opts.StaleAcceptable = DefaultStoreOptions().StaleAcceptable
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultStoreOptions().CleanupInterval
	}

	s := &Store{
		opts:        opts,
		elements:    make(map[string]*list.Element),
		lru:         list.New(),
		promMetrics: metrics.NewCacheMetrics("memory"),
		stopCh:      make(chan struct{}),
	}

	go s.sweepLoop()
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.elements[key]
	if !ok {
		s.missLocked()
		return nil, false
	}

	e := elem.Value.(*entry)
	now := time.Now()
	if e.expired(now) {
		// Expired entries stay around for stale reads until the
		// staleness window passes.
		if e.age(now) > s.opts.StaleAcceptable {
			s.removeLocked(elem)
			s.expirations++
		}
		s.missLocked()
		return nil, false
	}

	value, err := s.decodeLocked(e)
	if err != nil {
		slog.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		s.removeLocked(elem)
		s.missLocked()
		return nil, false
	}

	e.accessedAt = now
	e.accessCount++
	s.lru.MoveToFront(elem)
	s.hits++
	s.promMetrics.RecordHit()
	return value, true
}

func (s *Store) GetStale(_ context.Context, key string) ([]byte, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.elements[key]
	if !ok {
		return nil, 0, false
	}

	e := elem.Value.(*entry)
	now := time.Now()
	age := e.age(now)
	if !e.expired(now) || age > s.opts.StaleAcceptable {
		return nil, 0, false
	}

	value, err := s.decodeLocked(e)
	if err != nil {
		slog.Warn("stale cache entry undecodable, dropping", "key", key, "error", err)
		s.removeLocked(elem)
		return nil, 0, false
	}

	s.staleHits++
	return value, age, true
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration, opts ...SetOption) {
	if value == nil {
		return
	}

	var options setOptions
	for _, opt := range opts {
		opt(&options)
	}

	stored, compressed := s.encode(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.elements[key]; ok {
		s.removeLocked(elem)
	}

	// A value that can never fit would otherwise drain the whole store
	// through eviction and still breach the byte cap.
	size := int64(len(stored) + len(key))
	if size > s.opts.MaxBytes {
		slog.Warn("cache value exceeds byte capacity, not stored", "key", key, "size", size)
		return
	}
	s.makeRoomLocked(size)

	now := time.Now()
	e := &entry{
		key:        key,
		value:      stored,
		compressed: compressed,
		createdAt:  now,
		accessedAt: now,
		size:       size,
		priority:   options.priority,
		tags:       options.tags,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.elements[key] = s.lru.PushFront(e)
	s.totalBytes += size
	if compressed {
		s.compressions++
		saved := len(value) - len(stored)
		s.bytesSaved += int64(saved)
		s.promMetrics.RecordBytesSaved(saved)
	}
}

func (s *Store) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.elements[key]
	if !ok {
		return false
	}
	s.removeLocked(elem)
	return true
}

func (s *Store) Exists(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.elements[key]
	if !ok {
		return false
	}
	return !elem.Value.(*entry).expired(time.Now())
}

func (s *Store) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elements = make(map[string]*list.Element)
	s.lru.Init()
	s.totalBytes = 0
}

// Keys returns the keys of all fresh entries.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(s.elements))
	for key, elem := range s.elements {
		if !elem.Value.(*entry).expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of entries currently held, including expired
// entries kept for stale reads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Backend:      "memory",
		Entries:      len(s.elements),
		SizeBytes:    s.totalBytes,
		Hits:         s.hits,
		Misses:       s.misses,
		StaleHits:    s.staleHits,
		Evictions:    s.evictions,
		Expirations:  s.expirations,
		Compressions: s.compressions,
		BytesSaved:   s.bytesSaved,
	}
}

// Close stops the background expiry sweep.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// encode compresses value when it meets the threshold. Compression failures
// and incompressible values fall back silently to the raw bytes.
func (s *Store) encode(value []byte) ([]byte, bool) {
	if s.opts.CompressionThreshold <= 0 || len(value) < s.opts.CompressionThreshold {
		return value, false
	}
	compressed, err := compress(value)
	if err != nil {
		slog.Warn("cache compression failed, storing raw", "error", err)
		return value, false
	}
	if len(compressed) >= len(value) {
		return value, false
	}
	return compressed, true
}

// decodeLocked returns the raw value of e, decompressing when needed.
func (s *Store) decodeLocked(e *entry) ([]byte, error) {
	if !e.compressed {
		return e.value, nil
	}
	return decompress(e.value)
}

func (s *Store) missLocked() {
	s.misses++
	s.promMetrics.RecordMiss()
}

// makeRoomLocked evicts least-recently-used entries in batches until both
// the entry-count cap and the byte cap admit an entry of the given size.
func (s *Store) makeRoomLocked(size int64) {
	for len(s.elements) > 0 &&
		(len(s.elements) >= s.opts.MaxEntries || s.totalBytes+size > s.opts.MaxBytes) {
		s.evictBatchLocked()
	}
}

// evictBatchLocked removes a fraction of the current entries from the LRU
// tail to amortize eviction cost. Always removes at least one entry.
func (s *Store) evictBatchLocked() {
	batch := int(float64(len(s.elements)) * s.opts.EvictionFraction)
	if batch < 1 {
		batch = 1
	}

	removed := 0
	for removed < batch {
		elem := s.lru.Back()
		if elem == nil {
			break
		}
		s.removeLocked(elem)
		removed++
	}
	s.evictions += int64(removed)
	s.promMetrics.RecordEviction(removed)
}

func (s *Store) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(s.elements, e.key)
	s.lru.Remove(elem)
	s.totalBytes -= e.size
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeDeadEntries()
		case <-s.stopCh:
			return
		}
	}
}

// removeDeadEntries drops entries that are expired and past the staleness
// window, so they can no longer serve even degraded reads.
func (s *Store) removeDeadEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var next *list.Element
	for elem := s.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		e := elem.Value.(*entry)
		if e.expired(now) && e.age(now) > s.opts.StaleAcceptable {
			s.removeLocked(elem)
			s.expirations++
		}
	}
}
