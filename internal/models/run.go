package models

import "time"

// RunResult reports what a single orchestrated crawl run did.
// One value is created per run and owned by the invocation that produced it;
// it is never shared between concurrent runs.
type RunResult struct {
	Portal         Portal    `json:"portal"`
	Zone           string    `json:"zone,omitempty"`
	TotalFound     int       `json:"total_found"`
	TotalProcessed int       `json:"total_processed"`
	Saved          int       `json:"saved"`
	Skipped        int       `json:"skipped"`
	Errors         int       `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// Merge folds a per-task result into an aggregate one. Used by the run
// orchestrator after all portal/zone tasks have finished; counters from
// in-flight tasks are never merged.
func (r *RunResult) Merge(other RunResult) {
	r.TotalFound += other.TotalFound
	r.TotalProcessed += other.TotalProcessed
	r.Saved += other.Saved
	r.Skipped += other.Skipped
	r.Errors += other.Errors
	if r.StartedAt.IsZero() || other.StartedAt.Before(r.StartedAt) {
		r.StartedAt = other.StartedAt
	}
	if other.EndedAt.After(r.EndedAt) {
		r.EndedAt = other.EndedAt
	}
}

// RunRecord persists a finished run for auditing.
type RunRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Portal         Portal    `gorm:"type:varchar(20);not null;index" json:"portal"`
	Zone           string    `gorm:"type:varchar(100)" json:"zone,omitempty"`
	TotalFound     int       `gorm:"not null;default:0" json:"total_found"`
	TotalProcessed int       `gorm:"not null;default:0" json:"total_processed"`
	Saved          int       `gorm:"not null;default:0" json:"saved"`
	Skipped        int       `gorm:"not null;default:0" json:"skipped"`
	Errors         int       `gorm:"not null;default:0" json:"errors"`
	StartedAt      time.Time `gorm:"type:datetime;not null" json:"started_at"`
	EndedAt        time.Time `gorm:"type:datetime;not null" json:"ended_at"`
	CreatedAt      time.Time `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
}

func (RunRecord) TableName() string {
	return "runs"
}
