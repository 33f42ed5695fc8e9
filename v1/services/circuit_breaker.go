package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uyenet/membership-backend/v1/models"
)

// ErrCircuitOpen is returned when the breaker rejects a call during cooldown
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to the external roster with a three-state
// machine (CLOSED/OPEN/HALF_OPEN). A lone success while CLOSED does not
// reset the failure count; only a success while HALF_OPEN does. The
// OPEN→HALF_OPEN transition is lazy: it happens on the next call after the
// reset timeout has elapsed, not on a timer.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state               models.BreakerState
	consecutiveFailures int
	lastFailureAt       *time.Time

	// now is injectable for tests
	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            models.BreakerClosed,
		now:              time.Now,
	}
}

// Execute runs op under breaker protection. While OPEN and inside the
// cooldown window the op is never invoked and the returned error states the
// remaining cooldown in seconds.
func (cb *CircuitBreaker) Execute(op func() error) error {
	cb.mu.Lock()

	if cb.state == models.BreakerOpen {
		elapsed := cb.now().Sub(*cb.lastFailureAt)
		if elapsed < cb.resetTimeout {
			remaining := cb.resetTimeout - elapsed
			cb.mu.Unlock()
			return fmt.Errorf("%w: retry in %ds", ErrCircuitOpen, int(remaining.Seconds())+1)
		}
		cb.state = models.BreakerHalfOpen
	}

	stateAtCall := cb.state
	cb.mu.Unlock()

	err := op()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFailures++
		now := cb.now()
		cb.lastFailureAt = &now
		if stateAtCall == models.BreakerHalfOpen || cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = models.BreakerOpen
		}
		return err
	}

	if stateAtCall == models.BreakerHalfOpen {
		cb.state = models.BreakerClosed
		cb.consecutiveFailures = 0
	}
	return nil
}

// Snapshot returns a point-in-time view of the breaker, safe to call
// concurrently with an in-flight Execute
func (cb *CircuitBreaker) Snapshot() models.BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := models.BreakerSnapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
	}
	if cb.lastFailureAt != nil {
		t := *cb.lastFailureAt
		snap.LastFailureAt = &t
	}
	return snap
}
