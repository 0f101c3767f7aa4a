package dataset

import (
	"log/slog"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// ValidationStats counts the rows removed by Validate.
type ValidationStats struct {
	OutOfRange int
	Duplicates int
}

// Validate cleans one freshly ingested batch. Rows with occupancy outside
// [0, 100] are dropped, then exact key duplicates are dropped keeping the first
// occurrence. Problems are logged as warnings, never returned as errors.
func Validate(records []domain.Record, logger *slog.Logger) ([]domain.Record, ValidationStats) {
	var stats ValidationStats

	inRange := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.OccupancyPercent < 0 || r.OccupancyPercent > 100 {
			stats.OutOfRange++
			continue
		}
		inRange = append(inRange, r)
	}
	if stats.OutOfRange > 0 {
		logger.Warn("dropping records with invalid occupancy_percent", "count", stats.OutOfRange)
	}

	seen := make(map[domain.RecordKey]struct{}, len(inRange))
	out := make([]domain.Record, 0, len(inRange))
	for _, r := range inRange {
		k := r.Key()
		if _, dup := seen[k]; dup {
			stats.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	if stats.Duplicates > 0 {
		logger.Warn("removing duplicate records", "count", stats.Duplicates)
	}
	return out, stats
}
