package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetEnforcesHourlyLimit(t *testing.T) {
	b := NewBudget(3, 0, true)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow())
	}
	assert.False(t, b.Allow())

	b.Reset()
	assert.True(t, b.Allow())
}

func TestBudgetDisabledAlwaysAllows(t *testing.T) {
	b := NewBudget(1, 1, false)
	for i := 0; i < 10; i++ {
		assert.True(t, b.Allow())
	}
}

func TestBudgetStats(t *testing.T) {
	b := NewBudget(100, 4000, true)
	b.Allow()
	b.Allow()

	stats := b.GetStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.RequestsLastHour)
	assert.Equal(t, 2, stats.RequestsLastDay)
	assert.Equal(t, 100, stats.LimitPerHour)
	assert.Equal(t, 4000, stats.LimitPerDay)
}

func TestPacerEnforcesMinimumDelay(t *testing.T) {
	p := NewPacer(1, 50*time.Millisecond, 0)

	start := time.Now()
	require.NoError(t, p.Acquire(context.Background()))
	p.Release()
	require.NoError(t, p.Acquire(context.Background()))
	p.Release()

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerRespectsContextCancellation(t *testing.T) {
	p := NewPacer(1, time.Hour, 0)

	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Slot is held; the second acquire must give up with the context.
	err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	p.Release()
}
