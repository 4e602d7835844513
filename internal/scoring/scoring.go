// Package scoring turns a canonical property record into an investment
// opportunity score. Score is a pure function: no I/O, no shared state,
// same inputs always produce the same output.
package scoring

import (
	"inmoradar/internal/config"
	"inmoradar/internal/models"
	"inmoradar/internal/zones"
)

// Component keys in the score breakdown.
const (
	ComponentZone      = "zone"
	ComponentPrice     = "price"
	ComponentSurface   = "surface"
	ComponentCondition = "condition"
	ComponentFeatures  = "features"
)

// Surface band bounds in m². Mid-range flats resell fastest; studios and
// very large units sit on the market.
const (
	surfaceIdealMin = 60.0
	surfaceIdealMax = 120.0
	surfaceEdgeMin  = 40.0
	surfaceEdgeMax  = 160.0
)

// Scorer computes scores with a fixed weight set. Weights come from
// configuration so the business can retune them without a rebuild.
type Scorer struct {
	weights config.ScoringConfig
}

func NewScorer(weights config.ScoringConfig) *Scorer {
	return &Scorer{weights: weights}
}

// Score returns the total in [0,100] plus each component's contribution.
// zone may be nil when the property's zone is not in the reference table;
// the zone and price components then contribute nothing.
func (s *Scorer) Score(p *models.Property, zone *zones.Zone) (float64, map[string]float64) {
	details := map[string]float64{
		ComponentZone:      s.zoneScore(zone),
		ComponentPrice:     s.priceScore(p, zone),
		ComponentSurface:   s.surfaceScore(p),
		ComponentCondition: s.conditionScore(p),
		ComponentFeatures:  s.featureScore(p),
	}

	var total float64
	for _, v := range details {
		total += v
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return total, details
}

// Apply scores the property in place, filling Score and ScoreDetails.
func (s *Scorer) Apply(p *models.Property, zone *zones.Zone) {
	p.Score, p.ScoreDetails = s.Score(p, zone)
}

func (s *Scorer) zoneScore(zone *zones.Zone) float64 {
	if zone == nil {
		return 0
	}
	switch zone.PriorityTier {
	case 1:
		return s.weights.ZoneTier1
	case 2:
		return s.weights.ZoneTier2
	case 3:
		return s.weights.ZoneTier3
	default:
		return 0
	}
}

// priceScore rewards listings priced below the zone's reference €/m².
// The contribution grows linearly with the discount and tops out at
// PriceMax once the discount reaches PriceDiscountCap. Listings at or
// above reference earn nothing; overpricing is not penalized because
// the zone and condition components already separate those out.
func (s *Scorer) priceScore(p *models.Property, zone *zones.Zone) float64 {
	if zone == nil || zone.ReferencePricePerM2 <= 0 || p.PricePerM2 == nil {
		return 0
	}

	discount := (zone.ReferencePricePerM2 - *p.PricePerM2) / zone.ReferencePricePerM2
	if discount <= 0 {
		return 0
	}
	if discount >= s.weights.PriceDiscountCap {
		return s.weights.PriceMax
	}
	return s.weights.PriceMax * discount / s.weights.PriceDiscountCap
}

func (s *Scorer) surfaceScore(p *models.Property) float64 {
	if p.SurfaceM2 == nil {
		return 0
	}
	m2 := *p.SurfaceM2
	switch {
	case m2 >= surfaceIdealMin && m2 <= surfaceIdealMax:
		return s.weights.SurfaceIdeal
	case m2 >= surfaceEdgeMin && m2 <= surfaceEdgeMax:
		return s.weights.SurfaceEdge
	default:
		return 0
	}
}

func (s *Scorer) conditionScore(p *models.Property) float64 {
	switch p.Condition {
	case models.ConditionReformed:
		return s.weights.CondReformed
	case models.ConditionGood:
		return s.weights.CondGood
	case models.ConditionNeedsReform:
		return s.weights.CondNeedsReform
	default:
		return 0
	}
}

func (s *Scorer) featureScore(p *models.Property) float64 {
	var total float64
	if p.IsExterior {
		total += s.weights.FeatExterior
	}
	if p.HasLift {
		total += s.weights.FeatLift
	}
	if p.HasGarage {
		total += s.weights.FeatGarage
	}
	if p.HasPool {
		total += s.weights.FeatPool
	}
	return total
}
