package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer enforces a minimum inter-request delay with jitter and bounds how
// many requests to one portal are in flight at once. Shared by every task
// crawling the same portal so concurrent zone queries cannot burst.
type Pacer struct {
	maxInFlight     int
	currentInFlight int
	baseDelay       time.Duration
	jitter          time.Duration
	lastRequest     time.Time
	mu              sync.Mutex
}

// NewPacer creates a pacer with the given in-flight bound and delay policy.
func NewPacer(maxInFlight int, baseDelay, jitter time.Duration) *Pacer {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Pacer{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
	}
}

// Acquire blocks until a request slot is free and the inter-request delay
// has elapsed, or the context is cancelled.
func (p *Pacer) Acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.currentInFlight < p.maxInFlight {
			break
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	required := p.baseDelay
	if p.jitter > 0 {
		required += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	var wait time.Duration
	if !p.lastRequest.IsZero() {
		wait = required - time.Since(p.lastRequest)
	}
	if wait < 0 {
		wait = 0
	}

	p.currentInFlight++
	// Record the moment this request will actually fire so the next
	// acquire measures its delay from there.
	p.lastRequest = time.Now().Add(wait)
	p.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			p.Release()
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// Release marks a request as completed
func (p *Pacer) Release() {
	p.mu.Lock()
	p.currentInFlight--
	p.mu.Unlock()
}

// InFlight returns the current in-flight request count.
func (p *Pacer) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentInFlight
}
