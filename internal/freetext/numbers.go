package freetext

import (
	"regexp"
	"strconv"
	"strings"
)

var nonNumeric = regexp.MustCompile(`[^\d.,]`)

// ParseLocaleNumber parses a number written with Spanish separators:
// "320.000" is 320000, "1,5" is 1.5, "1.234.567,89" is 1234567.89.
// Dots only count as thousands grouping when every trailing group is a
// triplet; otherwise they are decimal separators.
func ParseLocaleNumber(raw string) (float64, bool) {
	s := nonNumeric.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return 0, false
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	switch {
	case hasDot && hasComma:
		// Spanish convention: dots group thousands, comma marks decimals
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	case hasDot:
		if dotGroupsAreThousands(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func dotGroupsAreThousands(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts[1:] {
		if len(part) != 3 {
			return false
		}
	}
	return true
}

// ParseLocaleInt parses an integer with locale-tolerant separators,
// rejecting values with a fractional part.
func ParseLocaleInt(raw string) (int, bool) {
	v, ok := ParseLocaleNumber(raw)
	if !ok || v != float64(int(v)) {
		return 0, false
	}
	return int(v), true
}
