package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"order-intake/internal/logging"
)

// ErrCircuitOpen is returned while the breaker refuses to contact the mailbox.
var ErrCircuitOpen = errors.New("mailbox circuit breaker open")

// CircuitBreaker stops hammering the mail server after repeated fetch failures
type CircuitBreaker struct {
	next             Reader
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time

	mutex               sync.Mutex
	consecutiveFailures int
	isOpen              bool
	openedAt            time.Time
}

// NewCircuitBreaker wraps a reader
func NewCircuitBreaker(next Reader, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &CircuitBreaker{
		next:             next,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) FetchUnseen(ctx context.Context) ([]Message, error) {
	if !cb.canProceed() {
		return nil, fmt.Errorf("%w: %w", ErrFetch, ErrCircuitOpen)
	}

	msgs, err := cb.next.FetchUnseen(ctx)
	if err != nil {
		cb.recordFailure()
		return nil, err
	}
	cb.recordSuccess()
	return msgs, nil
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.consecutiveFailures = 0
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.failureThreshold && !cb.isOpen {
		cb.isOpen = true
		cb.openedAt = cb.now()
		logging.For("mailbox").Warnf("Mailbox: circuit breaker open after %d consecutive failures, retry after %v",
			cb.consecutiveFailures, cb.resetTimeout)
	}
}

func (cb *CircuitBreaker) canProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	// half-open: allow one attempt, a failure re-opens immediately
	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		logging.For("mailbox").Infof("Mailbox: circuit breaker half-open after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.consecutiveFailures = cb.failureThreshold - 1
		return true
	}
	return false
}

// Status returns whether the breaker is open and the current failure streak
func (cb *CircuitBreaker) Status() (isOpen bool, failures int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.consecutiveFailures
}
