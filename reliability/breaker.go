package reliability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"weatherdash.app/config"
	"weatherdash.app/errors"
	"weatherdash.app/metrics"
)

// ErrCircuitOpen marks errors produced by an open breaker so callers such
// as the retrier can fail fast instead of burning remaining attempts.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards calls to one upstream dependency. Failures that
// count toward opening the circuit are the retryable error types; a
// validation error or a missing API key says nothing about upstream health.
//
// CLOSED:    calls pass through, consecutive failures are counted.
// OPEN:      calls are rejected until the recovery timeout passes.
// HALF_OPEN: calls pass through as probes; one failure re-opens, enough
//            successes close.
type CircuitBreaker struct {
	name string
	cfg  config.BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	promMetrics *metrics.BreakerMetrics
}

// NewCircuitBreaker creates a closed breaker named after the dependency it
// protects.
func NewCircuitBreaker(name string, cfg config.BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		cfg:         cfg,
		state:       StateClosed,
		promMetrics: metrics.NewBreakerMetrics(name),
	}
}

// Do runs op through the breaker. When the circuit is open the op is not
// invoked and a service-unavailable error carrying ErrCircuitOpen and the
// remaining recovery time is returned instead.
func (b *CircuitBreaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	b.afterCall(err)
	return err
}

// State returns the current breaker state, applying the open-to-half-open
// transition first when the recovery timeout has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Name returns the name of the protected dependency.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Reset forces the breaker back to CLOSED and clears all counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.failures = 0
	b.successes = 0
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	if b.state == StateOpen {
		remaining := b.cfg.RecoveryTimeout - time.Since(b.openedAt)
		if remaining < 0 {
			remaining = 0
		}
		b.promMetrics.RecordRejection()
		return errors.NewServiceUnavailableError(
			fmt.Sprintf("%s circuit breaker is open", b.name), ErrCircuitOpen,
		).WithRetryAfter(remaining)
	}
	return nil
}

func (b *CircuitBreaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccessLocked()
		return
	}
	if !errors.IsRetryable(err) {
		// Caller-side errors say nothing about upstream health.
		return
	}
	b.onFailureLocked()
}

func (b *CircuitBreaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *CircuitBreaker) onFailureLocked() {
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	case StateHalfOpen:
		// A probe failure re-opens immediately.
		b.openLocked()
	}
}

func (b *CircuitBreaker) openLocked() {
	b.transitionLocked(StateOpen)
	b.openedAt = time.Now()
	b.successes = 0
}

func (b *CircuitBreaker) maybeHalfOpenLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.transitionLocked(StateHalfOpen)
		b.successes = 0
	}
}

func (b *CircuitBreaker) transitionLocked(next State) {
	if b.state == next {
		return
	}
	slog.Info("circuit breaker state change",
		"breaker", b.name,
		"from", b.state.String(),
		"to", next.String(),
		"failures", b.failures,
	)
	b.state = next
	b.promMetrics.SetState(int(next))
}

// BreakerRegistry holds one breaker per upstream dependency.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      config.BreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewBreakerRegistry(cfg config.BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewCircuitBreaker(name, r.cfg)
		r.breakers[name] = b
	}
	return b
}

// States reports every registered breaker's state, keyed by name.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	states := make(map[string]string, len(names))
	for _, name := range names {
		states[name] = r.Get(name).State().String()
	}
	return states
}
