package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"inmoradar/internal/config"
	"inmoradar/internal/models"
)

// Gateway wraps a backend with the dedup contract: per-key serialization,
// the debounce policy, append-only history, and explicit status-transition
// logging.
type Gateway struct {
	backend      Backend
	debounceMode string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGateway creates a gateway over a backend. debounceMode is one of the
// config.Debounce* constants; anything else falls back to same-day.
func NewGateway(backend Backend, debounceMode string) *Gateway {
	if debounceMode != config.DebounceSameRun && debounceMode != config.DebounceSameDay {
		debounceMode = config.DebounceSameDay
	}
	return &Gateway{
		backend:      backend,
		debounceMode: debounceMode,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Backend exposes the underlying backend for read-side collaborators.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Upsert inserts or updates a canonical record keyed by its source URL.
// On update, the prior price/surface/status snapshot is appended to history
// before new values apply; a materially-unchanged record inside the
// debounce window only touches updated_at and reports skipped.
func (g *Gateway) Upsert(p *models.Property, opts UpsertOptions) (UpsertOutcome, error) {
	if p.SourceURL == "" {
		return "", fmt.Errorf("upsert requires a source URL")
	}

	unlock := g.lockKey(p.SourceURL)
	defer unlock()

	now := time.Now()

	existing, err := g.backend.FindByURL(p.SourceURL)
	if err != nil && err != ErrNotFound {
		return "", fmt.Errorf("lookup failed for %s: %w", p.SourceURL, err)
	}

	if existing == nil {
		if p.ID == "" {
			p.ID = generateID(p.SourceURL)
		}
		if p.Status == "" {
			p.Status = models.PropertyStatusActive
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := g.backend.Create(p); err != nil {
			return "", fmt.Errorf("insert failed for %s: %w", p.SourceURL, err)
		}
		log.Printf("[Store] Created %s (%s, %s)", p.ID, p.Portal, p.SourceURL)
		return OutcomeCreated, nil
	}

	// Existing record: identity and creation time are immutable
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	if p.Status == "" {
		p.Status = existing.Status
	}

	if !materiallyChanged(existing, p) && g.withinDebounce(existing.UpdatedAt, now, opts) {
		if err := g.backend.TouchUpdatedAt(existing.ID, now); err != nil {
			return "", fmt.Errorf("touch failed for %s: %w", p.SourceURL, err)
		}
		return OutcomeSkipped, nil
	}

	// Append the prior snapshot before applying anything new. History is
	// append-only: the snapshot records what was true until this moment.
	hist := &models.PropertyHistory{
		PropertyID: existing.ID,
		Price:      existing.Price,
		SurfaceM2:  existing.SurfaceM2,
		Status:     existing.Status,
		RecordedAt: now,
	}
	if err := g.backend.AppendHistory(hist); err != nil {
		return "", fmt.Errorf("history append failed for %s: %w", p.SourceURL, err)
	}

	if existing.Status != p.Status {
		if err := g.recordTransition(existing, p.Status, opts.Reason); err != nil {
			return "", err
		}
	}

	p.UpdatedAt = now
	if err := g.backend.Update(p); err != nil {
		return "", fmt.Errorf("update failed for %s: %w", p.SourceURL, err)
	}
	return OutcomeUpdated, nil
}

// UpdateStatus applies a status change by source URL, logging the explicit
// transition. Used by the out-of-pipeline sweep that marks listings missing
// from a fresh crawl.
func (g *Gateway) UpdateStatus(sourceURL string, to models.PropertyStatus, reason string) error {
	unlock := g.lockKey(sourceURL)
	defer unlock()

	existing, err := g.backend.FindByURL(sourceURL)
	if err != nil {
		return err
	}
	if existing.Status == to {
		return nil
	}

	if err := g.recordTransition(existing, to, reason); err != nil {
		return err
	}

	existing.Status = to
	existing.UpdatedAt = time.Now()
	return g.backend.Update(existing)
}

// FindByURL returns the stored record for a listing URL.
func (g *Gateway) FindByURL(url string) (*models.Property, error) {
	return g.backend.FindByURL(url)
}

// List returns listings matching the filter.
func (g *Gateway) List(f ListFilter) ([]models.Property, error) {
	return g.backend.List(f)
}

// Count returns how many listings match the filter.
func (g *Gateway) Count(f ListFilter) (int64, error) {
	return g.backend.Count(f)
}

// History returns the append-only snapshots for a property, newest first.
func (g *Gateway) History(propertyID string, limit int) ([]models.PropertyHistory, error) {
	return g.backend.HistoryFor(propertyID, limit)
}

func (g *Gateway) recordTransition(existing *models.Property, to models.PropertyStatus, reason string) error {
	// Reactivation of a removed listing is legal but must be visible in
	// the log and the audit table, never a silent overwrite.
	if existing.Status == models.PropertyStatusRemoved && to == models.PropertyStatusActive {
		log.Printf("[Store] Reactivating %s: %s -> %s (%s)", existing.ID, existing.Status, to, reason)
	} else {
		log.Printf("[Store] Status transition for %s: %s -> %s (%s)", existing.ID, existing.Status, to, reason)
	}

	return g.backend.RecordTransition(&models.StatusTransition{
		PropertyID: existing.ID,
		FromStatus: existing.Status,
		ToStatus:   to,
		Reason:     reason,
	})
}

func (g *Gateway) withinDebounce(lastUpdated, now time.Time, opts UpsertOptions) bool {
	switch g.debounceMode {
	case config.DebounceSameRun:
		return !opts.RunStartedAt.IsZero() && !lastUpdated.Before(opts.RunStartedAt)
	default: // same_day
		y1, m1, d1 := lastUpdated.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
}

// lockKey serializes all mutation for one source URL.
func (g *Gateway) lockKey(key string) func() {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// materiallyChanged compares the fields the debounce policy cares about.
func materiallyChanged(old, incoming *models.Property) bool {
	return !floatPtrEqual(old.Price, incoming.Price) ||
		!floatPtrEqual(old.SurfaceM2, incoming.SurfaceM2) ||
		old.Status != incoming.Status
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// generateID derives the stable record ID from the source URL.
func generateID(sourceURL string) string {
	hash := md5.Sum([]byte(sourceURL))
	return hex.EncodeToString(hash[:])
}
