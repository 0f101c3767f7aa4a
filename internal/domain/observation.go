package domain

import (
	"time"
)

// OpenState is the tri-state open flag reported by the scraper.
type OpenState int8

const (
	OpenUnknown OpenState = iota
	OpenClosed
	OpenOpen
)

// OpenStateOf maps the optional is_open JSON flag onto an OpenState.
func OpenStateOf(v *bool) OpenState {
	switch {
	case v == nil:
		return OpenUnknown
	case *v:
		return OpenOpen
	default:
		return OpenClosed
	}
}

// Observation is one facility reading taken from a single snapshot file.
// It is never mutated after ingestion.
type Observation struct {
	Timestamp        time.Time
	FacilityName     string // raw name as scraped, before alias resolution
	FacilityType     string
	RawOccupancy     string
	OccupancyPercent float64
	IsOpen           OpenState

	capacity    int
	hasCapacity bool
}

// Capacity returns the capacity parsed from the raw occupancy text, if any.
func (o Observation) Capacity() (int, bool) {
	return o.capacity, o.hasCapacity
}

// FacilityKey identifies a facility by type and name.
type FacilityKey struct {
	Type string
	Name string
}

// String renders the key as "type:name", the form used in issues and lookups.
func (k FacilityKey) String() string {
	return k.Type + ":" + k.Name
}

// Less orders keys by type, then name.
func (k FacilityKey) Less(other FacilityKey) bool {
	if k.Type != other.Type {
		return k.Type < other.Type
	}
	return k.Name < other.Name
}

// Key returns the observation's raw facility key.
func (o Observation) Key() FacilityKey {
	return FacilityKey{Type: o.FacilityType, Name: o.FacilityName}
}
