package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	s := NewStore(opts)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStore_SetAndGet(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "weather:london", []byte(`{"temp":15}`), time.Minute)

	value, found := s.Get(ctx, "weather:london")
	assert.True(t, found)
	assert.Equal(t, []byte(`{"temp":15}`), value)

	_, found = s.Get(ctx, "weather:paris")
	assert.False(t, found)
}

func TestStore_TTLExpiration(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 100*time.Millisecond)

	value, found := s.Get(ctx, "k")
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	time.Sleep(150 * time.Millisecond)

	_, found = s.Get(ctx, "k")
	assert.False(t, found)
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 0)
	time.Sleep(50 * time.Millisecond)

	_, found := s.Get(ctx, "k")
	assert.True(t, found)
	assert.True(t, s.Exists(ctx, "k"))
}

func TestStore_LRUEviction(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxEntries = 3
	opts.EvictionFraction = 0.1 // batch of one at this size
	s := newTestStore(t, opts)
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.Set(ctx, "b", []byte("2"), time.Minute)
	s.Set(ctx, "c", []byte("3"), time.Minute)

	// Touching "a" must protect it from the eviction triggered by "d".
	_, found := s.Get(ctx, "a")
	require.True(t, found)

	s.Set(ctx, "d", []byte("4"), time.Minute)

	_, found = s.Get(ctx, "b")
	assert.False(t, found, "least-recently-used entry should be evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, found = s.Get(ctx, key)
		assert.True(t, found, "entry %q should survive eviction", key)
	}

	assert.Equal(t, int64(1), s.Stats().Evictions)
}

func TestStore_EvictionBatchFraction(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxEntries = 10
	opts.EvictionFraction = 0.5
	s := newTestStore(t, opts)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}
	require.Equal(t, 10, s.Len())

	s.Set(ctx, "overflow", []byte("v"), time.Minute)

	// Half of the 10 entries evicted in one batch, then the insert.
	assert.Equal(t, 6, s.Len())
	assert.Equal(t, int64(5), s.Stats().Evictions)

	_, found := s.Get(ctx, "overflow")
	assert.True(t, found)
}

func TestStore_ByteCapEviction(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxBytes = 100
	opts.EvictionFraction = 0.1
	s := newTestStore(t, opts)
	ctx := context.Background()

	// Each entry is 1 byte of key + 29 bytes of value = 30 bytes.
	s.Set(ctx, "a", []byte(strings.Repeat("x", 29)), time.Minute)
	s.Set(ctx, "b", []byte(strings.Repeat("y", 29)), time.Minute)
	s.Set(ctx, "c", []byte(strings.Repeat("z", 29)), time.Minute)
	require.Equal(t, 3, s.Len())

	s.Set(ctx, "d", []byte(strings.Repeat("w", 29)), time.Minute)

	_, found := s.Get(ctx, "a")
	assert.False(t, found, "oldest entry should be evicted to satisfy the byte cap")
	assert.LessOrEqual(t, s.Stats().SizeBytes, int64(100))
}

func TestStore_OversizedValueRejected(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxBytes = 100
	s := newTestStore(t, opts)
	ctx := context.Background()

	s.Set(ctx, "a", []byte(strings.Repeat("x", 29)), time.Minute)
	s.Set(ctx, "big", []byte(strings.Repeat("y", 200)), time.Minute)

	_, found := s.Get(ctx, "big")
	assert.False(t, found, "values over the byte cap are not stored")
	assert.True(t, s.Exists(ctx, "a"), "existing entries are not evicted for a value that cannot fit")
	assert.Equal(t, int64(0), s.Stats().Evictions)
	assert.Equal(t, int64(30), s.Stats().SizeBytes)
}

func TestStore_CompressionRoundTrip(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.CompressionThreshold = 64
	s := newTestStore(t, opts)
	ctx := context.Background()

	value := []byte(strings.Repeat(`{"temp":21.5,"humidity":60},`, 50))
	s.Set(ctx, "big", value, time.Minute)

	got, found := s.Get(ctx, "big")
	require.True(t, found)
	assert.Equal(t, value, got)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Compressions)
	assert.Greater(t, stats.BytesSaved, int64(0))
	assert.Less(t, stats.SizeBytes, int64(len(value)))
}

func TestStore_SmallValuesNotCompressed(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.CompressionThreshold = 1024
	s := newTestStore(t, opts)
	ctx := context.Background()

	s.Set(ctx, "small", []byte("tiny"), time.Minute)

	got, found := s.Get(ctx, "small")
	require.True(t, found)
	assert.Equal(t, []byte("tiny"), got)
	assert.Equal(t, int64(0), s.Stats().Compressions)
}

func TestStore_CorruptedEntryIsMiss(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.CompressionThreshold = 16
	s := newTestStore(t, opts)
	ctx := context.Background()

	value := []byte(strings.Repeat("compress me please ", 20))
	s.Set(ctx, "k", value, time.Minute)

	// Corrupt the stored bytes behind the store's back.
	s.mu.Lock()
	e := s.elements["k"].Value.(*entry)
	require.True(t, e.compressed)
	for i := range e.value {
		e.value[i] = 0
	}
	s.mu.Unlock()

	_, found := s.Get(ctx, "k")
	assert.False(t, found)
	assert.Equal(t, 0, s.Len(), "corrupt entry should be removed")
}

func TestStore_GetStale(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.StaleAcceptable = time.Hour
	s := newTestStore(t, opts)
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 50*time.Millisecond)

	// Fresh entries are not served as stale.
	_, _, ok := s.GetStale(ctx, "k")
	assert.False(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, found := s.Get(ctx, "k")
	assert.False(t, found)

	value, age, ok := s.GetStale(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
	assert.Greater(t, age, 50*time.Millisecond)
}

func TestStore_StaleWindowExpiry(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.StaleAcceptable = 100 * time.Millisecond
	s := newTestStore(t, opts)
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	_, _, ok := s.GetStale(ctx, "k")
	assert.False(t, ok, "entries past the staleness window are unusable")
}

func TestStore_ReplaceExistingKey(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("old"), time.Minute)
	s.Set(ctx, "k", []byte("new"), time.Minute)

	got, found := s.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_DeleteExistsClear(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	assert.True(t, s.Exists(ctx, "k"))

	assert.True(t, s.Delete(ctx, "k"))
	assert.False(t, s.Delete(ctx, "k"))
	assert.False(t, s.Exists(ctx, "k"))

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.Set(ctx, "b", []byte("2"), time.Minute)
	s.Clear(ctx)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(0), s.Stats().SizeBytes)
}

func TestStore_ExistsExpired(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 50*time.Millisecond)
	assert.True(t, s.Exists(ctx, "k"))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, s.Exists(ctx, "k"))
}

func TestStore_AccessCountAndRecency(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	for i := 0; i < 3; i++ {
		_, found := s.Get(ctx, "k")
		require.True(t, found)
	}

	s.mu.Lock()
	e := s.elements["k"].Value.(*entry)
	assert.Equal(t, int64(3), e.accessCount)
	assert.False(t, e.accessedAt.Before(e.createdAt))
	s.mu.Unlock()
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), time.Minute)
	s.Get(ctx, "k")
	s.Get(ctx, "missing")

	stats := s.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.0001)
}

func TestStore_Keys(t *testing.T) {
	s := newTestStore(t, DefaultStoreOptions())
	ctx := context.Background()

	s.Set(ctx, "fresh", []byte("v"), time.Minute)
	s.Set(ctx, "expiring", []byte("v"), 30*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	keys := s.Keys()
	assert.Equal(t, []string{"fresh"}, keys)
}

func TestCompressRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte(strings.Repeat("abc", 1000)),
		[]byte(`{"location":"London","temperature":15.5}`),
		{},
	}
	for _, input := range inputs {
		compressed, err := compress(input)
		require.NoError(t, err)

		raw, err := decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, input, raw)
	}
}

func TestDecompress_Garbage(t *testing.T) {
	_, err := decompress([]byte("definitely not gzip"))
	assert.Error(t, err)
}
