package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
		ok       bool
	}{
		{"plural", "57/311 persons", 311, true},
		{"singular", "1/100 person", 100, true},
		{"surrounding whitespace", "  12 / 80  persons ", 80, true},
		{"embedded in text", "Auslastung: 5/40 persons (frei)", 40, true},
		{"empty", "", 0, false},
		{"garbage", "garbage", 0, false},
		{"missing unit", "57/311", 0, false},
		{"percent text", "45%", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCapacity(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFacilityRecord_CapacityNullOccupancy(t *testing.T) {
	// A JSON null raw_occupancy decodes to "" and is unparseable.
	_, ok := FacilityRecord{}.Capacity()
	assert.False(t, ok)
}
