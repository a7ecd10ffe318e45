package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collectors struct {
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheEvictions  *prometheus.CounterVec
	cacheHitRatio   *prometheus.GaugeVec
	cacheBytesSaved *prometheus.CounterVec

	breakerState      *prometheus.GaugeVec
	breakerRejections *prometheus.CounterVec

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
}

var (
	global     *collectors
	globalOnce sync.Once
)

func getCollectors() *collectors {
	globalOnce.Do(func() {
		global = &collectors{
			cacheHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_cache_hits_total",
					Help: "The total number of cache hits",
				},
				[]string{"cache_type"},
			),
			cacheMisses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_cache_misses_total",
					Help: "The total number of cache misses",
				},
				[]string{"cache_type"},
			),
			cacheEvictions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_cache_evictions_total",
					Help: "The total number of cache entries evicted",
				},
				[]string{"cache_type"},
			),
			cacheHitRatio: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "weather_cache_hit_ratio",
					Help: "Cache hit ratio (hits/total requests)",
				},
				[]string{"cache_type"},
			),
			cacheBytesSaved: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_cache_compression_bytes_saved_total",
					Help: "Bytes saved by cache value compression",
				},
				[]string{"cache_type"},
			),
			breakerState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "weather_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
				},
				[]string{"breaker"},
			),
			breakerRejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_circuit_breaker_rejections_total",
					Help: "Calls rejected while the circuit breaker is open",
				},
				[]string{"breaker"},
			),
			providerRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "weather_provider_requests_total",
					Help: "Weather provider requests by outcome",
				},
				[]string{"provider", "operation", "outcome"},
			),
			providerLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "weather_provider_duration_seconds",
					Help:    "Weather provider request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider", "operation"},
			),
		}
	})
	return global
}

// CacheMetrics tracks hit/miss/eviction counts for one cache backend.
type CacheMetrics struct {
	cacheType string
	mu        sync.Mutex
	hits      int64
	misses    int64
	collector *collectors
}

func NewCacheMetrics(cacheType string) *CacheMetrics {
	return &CacheMetrics{
		cacheType: cacheType,
		collector: getCollectors(),
	}
}

func (m *CacheMetrics) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hits++
	m.collector.cacheHits.WithLabelValues(m.cacheType).Inc()
	m.updateHitRatio()
}

func (m *CacheMetrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.misses++
	m.collector.cacheMisses.WithLabelValues(m.cacheType).Inc()
	m.updateHitRatio()
}

func (m *CacheMetrics) RecordEviction(count int) {
	m.collector.cacheEvictions.WithLabelValues(m.cacheType).Add(float64(count))
}

func (m *CacheMetrics) RecordBytesSaved(n int) {
	if n > 0 {
		m.collector.cacheBytesSaved.WithLabelValues(m.cacheType).Add(float64(n))
	}
}

// updateHitRatio must be called while holding the mutex.
func (m *CacheMetrics) updateHitRatio() {
	total := m.hits + m.misses
	if total > 0 {
		m.collector.cacheHitRatio.WithLabelValues(m.cacheType).Set(float64(m.hits) / float64(total))
	}
}

// BreakerMetrics exposes circuit breaker state transitions to Prometheus.
type BreakerMetrics struct {
	name      string
	collector *collectors
}

func NewBreakerMetrics(name string) *BreakerMetrics {
	return &BreakerMetrics{
		name:      name,
		collector: getCollectors(),
	}
}

func (m *BreakerMetrics) SetState(state int) {
	m.collector.breakerState.WithLabelValues(m.name).Set(float64(state))
}

func (m *BreakerMetrics) RecordRejection() {
	m.collector.breakerRejections.WithLabelValues(m.name).Inc()
}

// ProviderMetrics tracks outbound provider request outcomes and latency.
type ProviderMetrics struct {
	provider  string
	collector *collectors
}

func NewProviderMetrics(provider string) *ProviderMetrics {
	return &ProviderMetrics{
		provider:  provider,
		collector: getCollectors(),
	}
}

func (m *ProviderMetrics) RecordRequest(operation, outcome string, seconds float64) {
	m.collector.providerRequests.WithLabelValues(m.provider, operation, outcome).Inc()
	m.collector.providerLatency.WithLabelValues(m.provider, operation).Observe(seconds)
}
