package dataset

import (
	"sort"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// Merge appends incoming rows to existing ones and resolves key collisions in
// favour of the later row, so new data replaces old. The result is sorted by
// timestamp and facility name, with facility type as the final tie-break.
func Merge(existing, incoming []domain.Record) []domain.Record {
	combined := make([]domain.Record, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	last := make(map[domain.RecordKey]int, len(combined))
	for i := range combined {
		last[combined[i].Key()] = i
	}
	out := make([]domain.Record, 0, len(last))
	for i := range combined {
		if last[combined[i].Key()] == i {
			out = append(out, combined[i])
		}
	}

	Sort(out)
	return out
}

// Sort orders rows for persistence.
func Sort(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.FacilityName != b.FacilityName {
			return a.FacilityName < b.FacilityName
		}
		return a.FacilityType < b.FacilityType
	})
}

// MaxTimestamp returns the latest timestamp in records.
func MaxTimestamp(records []domain.Record) (time.Time, bool) {
	var (
		maxTS time.Time
		found bool
	)
	for _, r := range records {
		if !found || r.Timestamp.After(maxTS) {
			maxTS = r.Timestamp
			found = true
		}
	}
	return maxTS, found
}
