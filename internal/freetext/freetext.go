// Package freetext turns unstructured pasted listing text into a canonical
// property record. Extraction is pure and deterministic: no network, no
// clock, no randomness. A pattern that does not match leaves its field
// absent; nothing here ever returns an error.
package freetext

import (
	"regexp"
	"strings"

	"inmoradar/internal/models"
)

var (
	pricePattern    = regexp.MustCompile(`(?i)([\d.,]+)\s*(?:€|euros?)`)
	surfacePattern  = regexp.MustCompile(`(?i)([\d.,]+)\s*m(?:²|2)\b`)
	roomsPattern    = regexp.MustCompile(`(?i)(\d+)\s*(?:habitaciones?|hab\b\.?|dormitorios?)`)
	bathsPattern    = regexp.MustCompile(`(?i)(\d+)\s*(?:baños?|aseos?)`)
	floorPattern    = regexp.MustCompile(`(?i)planta\s*(\d+)`)
	floorAltPattern = regexp.MustCompile(`(?i)(\d+)ª?\s*planta`)
	groundPattern   = regexp.MustCompile(`(?i)\bplanta baja\b|\bbajo\b`)
	aticoPattern    = regexp.MustCompile(`(?i)ático|atico`)
)

// addressPatterns are tried in order; the first match wins.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(calle\s+[^,.;\n]{3,60})`),
	regexp.MustCompile(`(?i)\b(avenida\s+[^,.;\n]{3,60}|avda\.?\s+[^,.;\n]{3,60})`),
	regexp.MustCompile(`(?i)\b(paseo\s+[^,.;\n]{3,60})`),
	regexp.MustCompile(`(?i)\b(plaza\s+[^,.;\n]{3,60})`),
}

// zonePatterns locate the neighbourhood/zone name.
var zonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)barrio(?:\s+de)?\s+([a-záéíóúñ][\wáéíóúñ-]*(?:\s+[a-záéíóúñ][\wáéíóúñ-]*)?)`),
	regexp.MustCompile(`(?i)zona(?:\s+de)?\s+([a-záéíóúñ][\wáéíóúñ-]*(?:\s+[a-záéíóúñ][\wáéíóúñ-]*)?)`),
}

// Extract parses raw pasted text into a canonical record. It never fails:
// unmatched optional fields are simply left absent.
func Extract(raw string) *models.Property {
	text := Clean(raw)

	p := &models.Property{
		Status:    models.PropertyStatusActive,
		Condition: ClassifyCondition(text),
	}

	if m := pricePattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleNumber(m[1]); ok && v > 0 {
			p.Price = &v
		}
	}

	if m := surfacePattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleNumber(m[1]); ok && v > 0 {
			p.SurfaceM2 = &v
		}
	}

	if m := roomsPattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleInt(m[1]); ok {
			p.Rooms = &v
		}
	}

	if m := bathsPattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleInt(m[1]); ok {
			p.Bathrooms = &v
		}
	}

	p.IsPenthouse = IsPenthouse(text)
	if floor, ok := ExtractFloor(text); ok {
		p.Floor = &floor
	}

	ApplyFeatures(text, p)

	for _, re := range addressPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			p.Address = strings.TrimSpace(m[1])
			break
		}
	}

	for _, re := range zonePatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			p.Zone = strings.TrimSpace(m[1])
			break
		}
	}

	p.ComputeDerived()
	p.ResolveConfidence()
	return p
}

// IsPenthouse reports whether the text mentions an ático, with or without
// the accent.
func IsPenthouse(text string) bool {
	return aticoPattern.MatchString(text)
}

// Clean collapses all whitespace runs to single spaces.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// ExtractFloor resolves the floor number. "bajo"/"planta baja" is floor 0;
// "ático" carries no number itself, so a secondary "Planta N" match is still
// attempted for penthouse listings.
func ExtractFloor(text string) (int, bool) {
	if m := floorPattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleInt(m[1]); ok {
			return v, true
		}
	}
	if m := floorAltPattern.FindStringSubmatch(text); len(m) > 1 {
		if v, ok := ParseLocaleInt(m[1]); ok {
			return v, true
		}
	}
	if groundPattern.MatchString(text) {
		return 0, true
	}
	return 0, false
}

// ApplyFeatures sets the boolean feature flags from keyword containment.
func ApplyFeatures(text string, p *models.Property) {
	lowered := strings.ToLower(text)

	if strings.Contains(lowered, "exterior") {
		p.IsExterior = true
	}
	if strings.Contains(lowered, "ascensor") {
		p.HasLift = true
	}
	if strings.Contains(lowered, "garaje") || strings.Contains(lowered, "parking") || strings.Contains(lowered, "plaza de garaje") {
		p.HasGarage = true
	}
	if strings.Contains(lowered, "piscina") {
		p.HasPool = true
	}
	if strings.Contains(lowered, "trastero") {
		p.HasStorage = true
	}
}

// ClassifyCondition applies the condition precedence rules:
// "reformar"/"reforma" without "reformado" means the flat needs work;
// "reformado"/"renovado" means the work is done; "buen estado" and the
// default both classify as good.
func ClassifyCondition(text string) models.Condition {
	lowered := strings.ToLower(text)

	hasReformar := strings.Contains(lowered, "reformar") || strings.Contains(lowered, "reforma")
	hasReformado := strings.Contains(lowered, "reformado") || strings.Contains(lowered, "reformada")

	switch {
	case hasReformar && !hasReformado:
		return models.ConditionNeedsReform
	case hasReformado || strings.Contains(lowered, "renovado") || strings.Contains(lowered, "renovada"):
		return models.ConditionReformed
	case strings.Contains(lowered, "buen estado"):
		return models.ConditionGood
	default:
		return models.ConditionGood
	}
}
