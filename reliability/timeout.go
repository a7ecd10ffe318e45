package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"weatherdash.app/errors"
)

// TimeoutManager applies per-operation deadlines to provider calls. Each
// operation may register its own timeout; unregistered operations use the
// default. Cancellation is real: the op receives a context that is done
// when the deadline passes.
type TimeoutManager struct {
	mu       sync.RWMutex
	defaults time.Duration
	timeouts map[string]time.Duration
}

func NewTimeoutManager(defaultTimeout time.Duration) *TimeoutManager {
	return &TimeoutManager{
		defaults: defaultTimeout,
		timeouts: make(map[string]time.Duration),
	}
}

// SetTimeout overrides the deadline for one named operation.
func (m *TimeoutManager) SetTimeout(operation string, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[operation] = timeout
}

// Timeout returns the deadline used for the named operation.
func (m *TimeoutManager) Timeout(operation string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.timeouts[operation]; ok {
		return t
	}
	return m.defaults
}

// Do runs op under the operation's deadline. A deadline hit is reported as
// a network error naming the operation and the configured timeout.
func (m *TimeoutManager) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	timeout := m.Timeout(operation)
	if timeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := op(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return errors.NewNetworkError(
			fmt.Sprintf("%s timed out after %s", operation, time.Since(start).Round(time.Millisecond)),
			callCtx.Err(),
		).WithOperation(operation)
	}
	return err
}
