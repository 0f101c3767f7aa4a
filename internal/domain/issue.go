package domain

import "fmt"

// Category groups audit findings for reporting and metrics.
type Category string

const (
	CategoryNewFacilityType     Category = "new_facility_type"
	CategoryMissingFacilityType Category = "missing_facility_type"
	CategoryInvalidOccupancy    Category = "invalid_occupancy"
	CategoryExtendedZero        Category = "extended_zero"
	CategoryMissingFacility     Category = "missing_facility"
	CategoryNewFacility         Category = "new_facility"
	CategoryCapacityChange      Category = "capacity_change"
	CategoryScrapeGap           Category = "scrape_gap"
)

// Issue is a single audit finding.
type Issue struct {
	Category Category
	Message  string
}

// Issuef builds an Issue with a formatted message.
func Issuef(category Category, format string, args ...any) Issue {
	return Issue{Category: category, Message: fmt.Sprintf(format, args...)}
}

func (i Issue) String() string {
	return i.Message
}
