package models

import "time"

// ReformQuality is a manual classification applied during comparable review.
type ReformQuality string

const (
	ReformQualityHigh   ReformQuality = "high"
	ReformQualityMedium ReformQuality = "medium"
	ReformQualityLow    ReformQuality = "low"
)

// Comparable is a sold-property record used as a pricing reference.
// WasReformed and ReformQuality are set manually through the review
// operation, not by the extraction pipeline.
type Comparable struct {
	ID         uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceURL  string   `gorm:"type:varchar(500);uniqueIndex" json:"source_url"`
	Zone       string   `gorm:"type:varchar(100);index" json:"zone"`
	District   string   `gorm:"type:varchar(100)" json:"district,omitempty"`
	Price      *float64 `gorm:"type:decimal(12,2)" json:"price,omitempty"`
	SurfaceM2  *float64 `gorm:"type:decimal(10,2)" json:"surface_m2,omitempty"`
	PricePerM2 *float64 `gorm:"type:decimal(10,2)" json:"price_per_m2,omitempty"`

	WasReformed   *bool         `json:"was_reformed,omitempty"`
	ReformQuality ReformQuality `gorm:"type:varchar(10)" json:"reform_quality,omitempty"`
	ReviewedAt    *time.Time    `gorm:"type:datetime" json:"reviewed_at,omitempty"`

	SoldAt    *time.Time `gorm:"type:datetime" json:"sold_at,omitempty"`
	CreatedAt time.Time  `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`
}

func (Comparable) TableName() string {
	return "comparables"
}

// Reviewed reports whether a human has classified this comparable.
func (c *Comparable) Reviewed() bool {
	return c.ReviewedAt != nil
}
