package ratelimit

import (
	"sync"
	"time"
)

// Budget tracks request volume over sliding hourly and daily windows so a
// run respects the portal quota regardless of how many tasks it spans.
type Budget struct {
	requestsPerHour int
	requestsPerDay  int
	enabled         bool

	hourWindow []time.Time
	dayWindow  []time.Time
	mu         sync.Mutex
}

// NewBudget creates a request budget. Zero limits disable the corresponding
// window; a nil-equivalent budget (enabled=false) always allows.
func NewBudget(requestsPerHour, requestsPerDay int, enabled bool) *Budget {
	return &Budget{
		requestsPerHour: requestsPerHour,
		requestsPerDay:  requestsPerDay,
		enabled:         enabled,
	}
}

// Allow records and permits a request if the budget has room left.
func (b *Budget) Allow() bool {
	if !b.enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.cleanup(now)

	if b.requestsPerHour > 0 && len(b.hourWindow) >= b.requestsPerHour {
		return false
	}
	if b.requestsPerDay > 0 && len(b.dayWindow) >= b.requestsPerDay {
		return false
	}

	b.hourWindow = append(b.hourWindow, now)
	b.dayWindow = append(b.dayWindow, now)
	return true
}

// Stats contains request budget statistics
type Stats struct {
	Enabled          bool `json:"enabled"`
	RequestsLastHour int  `json:"requests_last_hour"`
	RequestsLastDay  int  `json:"requests_last_day"`
	LimitPerHour     int  `json:"limit_per_hour"`
	LimitPerDay      int  `json:"limit_per_day"`
}

// GetStats returns current budget usage.
func (b *Budget) GetStats() Stats {
	if !b.enabled {
		return Stats{Enabled: false}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup(time.Now())

	return Stats{
		Enabled:          true,
		RequestsLastHour: len(b.hourWindow),
		RequestsLastDay:  len(b.dayWindow),
		LimitPerHour:     b.requestsPerHour,
		LimitPerDay:      b.requestsPerDay,
	}
}

// Reset clears all tracked requests (useful for testing)
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hourWindow = nil
	b.dayWindow = nil
}

func (b *Budget) cleanup(now time.Time) {
	b.hourWindow = filterTimes(b.hourWindow, now.Add(-1*time.Hour))
	b.dayWindow = filterTimes(b.dayWindow, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}
