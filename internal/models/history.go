package models

import "time"

// PropertyHistory is one append-only snapshot of a property's prior state,
// recorded just before an upsert applies new values. Rows are never rewritten.
type PropertyHistory struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string         `gorm:"type:varchar(32);not null;index:idx_history_property" json:"property_id"`
	Price      *float64       `gorm:"type:decimal(12,2)" json:"price,omitempty"`
	SurfaceM2  *float64       `gorm:"type:decimal(10,2)" json:"surface_m2,omitempty"`
	Status     PropertyStatus `gorm:"type:varchar(20);not null" json:"status"`
	RecordedAt time.Time      `gorm:"type:datetime;not null;autoCreateTime" json:"recorded_at"`
}

func (PropertyHistory) TableName() string {
	return "property_history"
}

// StatusTransition records every explicit status change, including
// re-activation of a previously removed listing. Transitions are audit
// records: they are written alongside the status update, never inferred.
type StatusTransition struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID string         `gorm:"type:varchar(32);not null;index" json:"property_id"`
	FromStatus PropertyStatus `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus   PropertyStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	Reason     string         `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt  time.Time      `gorm:"type:datetime;not null;autoCreateTime;index" json:"created_at"`
}

func (StatusTransition) TableName() string {
	return "status_transitions"
}
