package crawler

import (
	"log"
	"sync"
	"time"
)

// CircuitBreaker halts discovery against a portal once the failure pattern
// looks like an anti-bot block rather than transient noise.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	failures            int
	successes           int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// RecordSuccess records a successful page fetch
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed or blocked page fetch. Two consecutive
// block-class failures open the breaker immediately; otherwise a 40%
// failure rate over 20 requests opens it.
func (cb *CircuitBreaker) RecordFailure(blocked bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = time.Now()

	if blocked && cb.consecutiveFailures >= 2 {
		cb.isOpen = true
		log.Printf("⚠️  [CircuitBreaker] OPEN: %d consecutive blocked fetches. Halting until %v passes", cb.consecutiveFailures, cb.resetTimeout)
		return
	}

	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= 0.40 {
			cb.isOpen = true
			log.Printf("⚠️  [CircuitBreaker] OPEN: failure rate %.1f%% (%d/%d). Suspected block", failureRate*100, cb.failures, cb.totalRequests)
		}
	}
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if time.Since(cb.lastFailureTime) > cb.resetTimeout {
		log.Printf("[CircuitBreaker] Half-open after %v, allowing traffic again", cb.resetTimeout)
		cb.isOpen = false
		cb.failures = 0
		cb.successes = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}
