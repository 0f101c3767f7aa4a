package domain

import (
	"regexp"
	"strconv"
)

// capacityRe matches the scraper's occupancy text, e.g. "57/311 persons" or
// "1/100 person". The second number is the facility capacity.
var capacityRe = regexp.MustCompile(`\d+\s*/\s*(\d+)\s*persons?`)

// ParseCapacity extracts the capacity from a raw occupancy string.
// It reports false for empty or unrecognized input.
func ParseCapacity(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	m := capacityRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
