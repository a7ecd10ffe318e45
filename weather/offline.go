package weather

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"weatherdash.app/config"
)

// OfflineController tracks fetch outcomes and decides when the dashboard
// is offline, when to switch to the fallback provider, and how long to
// wait before the next upstream attempt.
type OfflineController struct {
	cfg config.OfflineConfig

	mu                  sync.Mutex
	lastSuccess         time.Time
	firstFailure        time.Time
	consecutiveFailures int
	usingFallback       bool
	backoff             time.Duration
}

func NewOfflineController(cfg config.OfflineConfig) *OfflineController {
	return &OfflineController{
		cfg:         cfg,
		lastSuccess: time.Now(),
	}
}

// RecordFailure counts a failed upstream fetch and escalates the backoff.
func (c *OfflineController) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.consecutiveFailures == 0 {
		c.firstFailure = now
	}
	c.consecutiveFailures++

	if c.backoff == 0 {
		c.backoff = c.cfg.BackoffBase
	} else {
		escalated := time.Duration(float64(c.backoff) * c.cfg.BackoffMultiplier)
		if escalated > c.cfg.BackoffMax {
			escalated = c.cfg.BackoffMax
		}
		c.backoff = escalated
	}

	slog.Warn("weather fetch failure recorded",
		"consecutive_failures", c.consecutiveFailures,
		"backoff", c.backoff,
		"using_fallback", c.usingFallback,
	)
}

// RecordSuccess clears the failure streak and returns to the primary
// provider.
func (c *OfflineController) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasOffline := c.offlineLocked(time.Now())
	if wasOffline || c.usingFallback {
		slog.Info("weather service recovered",
			"was_offline", wasOffline,
			"was_using_fallback", c.usingFallback,
		)
	}

	c.lastSuccess = time.Now()
	c.firstFailure = time.Time{}
	c.consecutiveFailures = 0
	c.usingFallback = false
	c.backoff = 0
}

// Offline reports whether failures have persisted past the offline
// threshold without a success.
func (c *OfflineController) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offlineLocked(time.Now())
}

func (c *OfflineController) offlineLocked(now time.Time) bool {
	return !c.firstFailure.IsZero() && now.Sub(c.firstFailure) >= c.cfg.Threshold
}

// ShouldSwitchProvider reports whether enough consecutive failures have
// accumulated to try the fallback provider.
func (c *OfflineController) ShouldSwitchProvider() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.usingFallback && c.consecutiveFailures >= c.cfg.APISwitchThreshold
}

// SwitchToFallback marks the fallback provider as active and gives it a
// clean failure counter. The offline clock and backoff keep running.
func (c *OfflineController) SwitchToFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.usingFallback {
		slog.Info("switching to fallback weather provider",
			"consecutive_failures", c.consecutiveFailures)
		c.usingFallback = true
		c.consecutiveFailures = 0
	}
}

// UsingFallback reports whether the fallback provider is active.
func (c *OfflineController) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

// BackoffDelay returns how long to wait before the next upstream attempt:
// the escalated backoff with up to 10% extra jitter, or zero when the last
// fetch succeeded.
func (c *OfflineController) BackoffDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backoff == 0 {
		return 0
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(c.backoff))
	return c.backoff + jitter
}

// Snapshot returns the controller state for the status view.
func (c *OfflineController) Snapshot() (offline bool, usingFallback bool, failures int, lastSuccess time.Time, backoff time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offlineLocked(time.Now()), c.usingFallback, c.consecutiveFailures, c.lastSuccess, c.backoff
}
