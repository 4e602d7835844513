package models

import "time"

// Portal identifies the upstream listing site a property was ingested from.
type Portal string

const (
	PortalIdealista Portal = "idealista"
	PortalFotocasa  Portal = "fotocasa"
	PortalPisos     Portal = "pisos"

	// PortalManual marks records ingested from pasted free text rather
	// than a crawl. Never part of KnownPortals.
	PortalManual Portal = "manual"
)

// KnownPortals lists every portal the crawler knows how to paginate.
var KnownPortals = []Portal{PortalIdealista, PortalFotocasa, PortalPisos}

// IsKnownPortal reports whether the crawler has a profile for the portal.
func IsKnownPortal(p Portal) bool {
	for _, known := range KnownPortals {
		if p == known {
			return true
		}
	}
	return false
}

// PropertyStatus is the lifecycle status of a listing
type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "ACTIVE"
	PropertyStatusSold     PropertyStatus = "SOLD"
	PropertyStatusRemoved  PropertyStatus = "REMOVED"
	PropertyStatusArchived PropertyStatus = "ARCHIVED"
)

// Condition classifies the renovation state of a property
type Condition string

const (
	ConditionReformed    Condition = "reformed"
	ConditionGood        Condition = "good"
	ConditionNeedsReform Condition = "needs_reform"
)

// ExtractionConfidence indicates whether all required fields were resolved
type ExtractionConfidence string

const (
	ConfidenceFull    ExtractionConfidence = "full"
	ConfidencePartial ExtractionConfidence = "partial"
)

// Property is the canonical record shared by every extraction path.
// SourceURL is the dedup key: one row per listing URL across all runs.
type Property struct {
	ID        string `gorm:"type:varchar(32);primaryKey" json:"id"`
	SourceURL string `gorm:"type:varchar(500);not null;uniqueIndex" json:"source_url"`
	Portal    Portal `gorm:"type:varchar(20);not null;index" json:"portal"`
	Title     string `gorm:"type:text" json:"title"`

	// Pricing
	Price      *float64 `gorm:"type:decimal(12,2);index" json:"price,omitempty"`
	SurfaceM2  *float64 `gorm:"type:decimal(10,2)" json:"surface_m2,omitempty"`
	PricePerM2 *float64 `gorm:"type:decimal(10,2)" json:"price_per_m2,omitempty"`

	// Location
	Address  string `gorm:"type:text" json:"address,omitempty"`
	Zone     string `gorm:"type:varchar(100);index" json:"zone,omitempty"`
	District string `gorm:"type:varchar(100)" json:"district,omitempty"`
	City     string `gorm:"type:varchar(100)" json:"city,omitempty"`

	// Layout and features
	Rooms       *int `gorm:"type:int" json:"rooms,omitempty"`
	Bathrooms   *int `gorm:"type:int" json:"bathrooms,omitempty"`
	Floor       *int `gorm:"type:int" json:"floor,omitempty"`
	IsExterior  bool `gorm:"default:false" json:"is_exterior"`
	HasLift     bool `gorm:"default:false" json:"has_lift"`
	HasGarage   bool `gorm:"default:false" json:"has_garage"`
	HasPool     bool `gorm:"default:false" json:"has_pool"`
	HasStorage  bool `gorm:"default:false" json:"has_storage"`
	IsPenthouse bool `gorm:"default:false" json:"is_penthouse"`

	Condition Condition `gorm:"type:varchar(20)" json:"condition,omitempty"`

	Images []string `gorm:"serializer:json" json:"images,omitempty"`

	// Scoring
	Score        float64            `gorm:"type:decimal(5,2);index" json:"score"`
	ScoreDetails map[string]float64 `gorm:"serializer:json" json:"score_details,omitempty"`

	Status               PropertyStatus       `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	ExtractionConfidence ExtractionConfidence `gorm:"type:varchar(10);not null;default:'full'" json:"extraction_confidence"`

	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index:idx_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`

	History []PropertyHistory `gorm:"foreignKey:PropertyID" json:"history,omitempty"`
}

func (Property) TableName() string {
	return "properties"
}

// IsActive reports whether the listing is still live on its portal
func (p *Property) IsActive() bool {
	return p.Status == PropertyStatusActive
}

// ComputeDerived fills price_per_m2 from price and surface when both are known.
func (p *Property) ComputeDerived() {
	if p.Price != nil && p.SurfaceM2 != nil && *p.SurfaceM2 > 0 {
		ppm2 := *p.Price / *p.SurfaceM2
		p.PricePerM2 = &ppm2
	}
}

// ResolveConfidence sets the confidence flag from the required fields.
// Price and surface are the two fields downstream pricing depends on.
func (p *Property) ResolveConfidence() {
	if p.Price == nil || p.SurfaceM2 == nil {
		p.ExtractionConfidence = ConfidencePartial
	} else {
		p.ExtractionConfidence = ConfidenceFull
	}
}
