package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensOnConsecutiveBlocks(t *testing.T) {
	cb := NewCircuitBreaker(8, time.Hour)

	cb.RecordFailure(true)
	assert.True(t, cb.CanProceed(), "one block is transient noise")

	cb.RecordFailure(true)
	assert.False(t, cb.CanProceed())
}

func TestCircuitBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	cb := NewCircuitBreaker(8, time.Hour)

	cb.RecordFailure(true)
	cb.RecordSuccess()
	cb.RecordFailure(true)

	assert.True(t, cb.CanProceed())
}

func TestCircuitBreakerOpensOnFailureRate(t *testing.T) {
	cb := NewCircuitBreaker(8, time.Hour)

	// 8 non-block failures out of 20 requests: 40%.
	for i := 0; i < 12; i++ {
		cb.RecordSuccess()
	}
	for i := 0; i < 8; i++ {
		cb.RecordFailure(false)
	}

	isOpen, failures, total := cb.GetStatus()
	assert.True(t, isOpen)
	assert.Equal(t, 8, failures)
	assert.GreaterOrEqual(t, total, 20)
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(8, 10*time.Millisecond)

	cb.RecordFailure(true)
	cb.RecordFailure(true)
	assert.False(t, cb.CanProceed())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.CanProceed())
}
