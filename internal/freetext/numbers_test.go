package freetext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"320.000", 320000, true},
		{"1,5", 1.5, true},
		{"1.234.567,89", 1234567.89, true},
		{"95", 95, true},
		{"2.5", 2.5, true}, // not a triplet group, so a decimal point
		{"1.000.000", 1000000, true},
		{"320.000,50", 320000.5, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLocaleNumber(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseLocaleInt(t *testing.T) {
	v, ok := ParseLocaleInt("320.000")
	assert.True(t, ok)
	assert.Equal(t, 320000, v)

	_, ok = ParseLocaleInt("1,5")
	assert.False(t, ok)

	_, ok = ParseLocaleInt("x")
	assert.False(t, ok)
}
