// Package store is the dedup and persistence gateway. All pipeline writes
// funnel through Gateway.Upsert, which serializes mutations per source URL
// so concurrent discovery of one listing from two zone queries cannot lose
// a history entry or double-count run statistics.
package store

import (
	"errors"
	"time"

	"inmoradar/internal/models"
)

// ErrNotFound is returned when no record exists for a lookup key.
var ErrNotFound = errors.New("record not found")

// UpsertOutcome classifies what an upsert did.
type UpsertOutcome string

const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
	OutcomeSkipped UpsertOutcome = "skipped"
)

// UpsertOptions carries per-call context for the debounce policy.
type UpsertOptions struct {
	// RunStartedAt marks the enclosing run, for the same-run debounce
	// window. Zero when the upsert is not part of an orchestrated run.
	RunStartedAt time.Time
	// Reason is recorded on any status transition this upsert causes.
	Reason string
}

// ListFilter narrows listing queries. Zero values mean "no constraint".
type ListFilter struct {
	Portal   models.Portal
	Zone     string
	Status   models.PropertyStatus
	MinPrice *float64
	MaxPrice *float64
	MinScore *float64
	OrderBy  string // score_desc, price_asc, price_desc, created_desc
	Limit    int
	Offset   int
}

// Backend is the raw persistence contract the gateway drives. Two
// implementations exist: GORM (MySQL / SQLite) and raw-SQL PostgreSQL.
type Backend interface {
	FindByURL(url string) (*models.Property, error)
	Create(p *models.Property) error
	Update(p *models.Property) error
	TouchUpdatedAt(id string, t time.Time) error
	AppendHistory(h *models.PropertyHistory) error
	RecordTransition(t *models.StatusTransition) error

	Count(f ListFilter) (int64, error)
	List(f ListFilter) ([]models.Property, error)
	HistoryFor(propertyID string, limit int) ([]models.PropertyHistory, error)

	FindStale(portal models.Portal, cutoff time.Time) ([]models.Property, error)
	FindExpired(cutoff time.Time, limit int) ([]models.Property, error)
	Delete(id string) error

	SaveRun(r *models.RunRecord) error
	GetComparable(id uint) (*models.Comparable, error)
	SaveComparable(c *models.Comparable) error

	Close() error
}
