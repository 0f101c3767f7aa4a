// Package audit inspects the compiled dataset and the raw scrape files for
// irregularities and assembles the findings into issue reports.
//
// Audits never fail a run because of what they find. Every finding is a
// [domain.Issue]; only I/O errors are returned as errors.
package audit

import (
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/config"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

// CompiledConfig holds the windows and thresholds of the compiled audit.
type CompiledConfig struct {
	HistoryWindow      time.Duration
	RecentWindow       time.Duration
	ZeroWindow         time.Duration
	ZeroSpanThreshold  time.Duration
	DaytimeStartHour   int // inclusive
	DaytimeEndHour     int // exclusive
	MaxInvalidReported int
}

// CompiledConfigFrom extracts the compiled audit settings from cfg.
func CompiledConfigFrom(cfg *config.Config) CompiledConfig {
	return CompiledConfig{
		HistoryWindow:      cfg.HistoryWindow,
		RecentWindow:       cfg.RecentWindow,
		ZeroWindow:         cfg.ZeroWindow,
		ZeroSpanThreshold:  cfg.ZeroSpanThreshold,
		DaytimeStartHour:   cfg.DaytimeStartHour,
		DaytimeEndHour:     cfg.DaytimeEndHour,
		MaxInvalidReported: cfg.MaxInvalidReported,
	}
}

// CompiledAuditor checks the persisted dataset. All windows are measured
// back from the clock's now, not from the newest row in the data. Facility
// types are compared between the recent window and the history before it.
type CompiledAuditor struct {
	cfg     CompiledConfig
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCompiledAuditor creates a CompiledAuditor.
func NewCompiledAuditor(cfg CompiledConfig, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *CompiledAuditor {
	return &CompiledAuditor{cfg: cfg, clock: clock, logger: logger, metrics: metrics}
}

// Audit runs every compiled-data check over records and returns the findings
// in check order.
func (a *CompiledAuditor) Audit(records []domain.Record) []domain.Issue {
	now := a.clock.Now()
	recentStart := now.Add(-a.cfg.RecentWindow)
	// The historical set overlaps the recent window.
	historical := typesBetween(records, now.Add(-a.cfg.HistoryWindow), time.Time{})
	recent := typesBetween(records, recentStart, time.Time{})
	a.logger.Info("compiled audit started", "records", len(records), "historical_types", len(historical), "recent_types", len(recent))

	checks := []struct {
		name string
		run  func() []domain.Issue
	}{
		{"new_facility_type", func() []domain.Issue { return newTypes(historical, recent) }},
		{"missing_facility_type", func() []domain.Issue { return missingTypes(historical, recent, a.cfg.RecentWindow) }},
		{"invalid_occupancy", func() []domain.Issue { return invalidOccupancy(records, recentStart, a.cfg.MaxInvalidReported) }},
		{"extended_zero", func() []domain.Issue { return extendedZero(records, now.Add(-a.cfg.ZeroWindow), a.cfg) }},
	}

	var all []domain.Issue
	for _, c := range checks {
		found := c.run()
		if len(found) > 0 {
			a.logger.Warn("compiled audit found issues", "check", c.name, "count", len(found))
		}
		all = append(all, found...)
	}
	recordIssues(a.metrics, all)
	return all
}

// typesBetween returns the distinct facility types with a row in [from, to).
// A zero to leaves the range open-ended.
func typesBetween(records []domain.Record, from, to time.Time) map[string]struct{} {
	out := make(map[string]struct{})
	for i := range records {
		ts := records[i].Timestamp
		if ts.Before(from) || (!to.IsZero() && !ts.Before(to)) {
			continue
		}
		out[records[i].FacilityType] = struct{}{}
	}
	return out
}

func newTypes(historical, recent map[string]struct{}) []domain.Issue {
	var out []domain.Issue
	for _, t := range difference(recent, historical) {
		out = append(out, domain.Issuef(domain.CategoryNewFacilityType, "New facility type: %s", t))
	}
	return out
}

func missingTypes(historical, recent map[string]struct{}, window time.Duration) []domain.Issue {
	var out []domain.Issue
	for _, t := range difference(historical, recent) {
		out = append(out, domain.Issuef(domain.CategoryMissingFacilityType,
			"Missing facility type: %s (no data in last %s)", t, formatHours(window)))
	}
	return out
}

// difference returns the sorted members of a that are not in b.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func invalidOccupancy(records []domain.Record, cutoff time.Time, limit int) []domain.Issue {
	var (
		out   []domain.Issue
		total int
	)
	for i := range records {
		r := &records[i]
		if r.Timestamp.Before(cutoff) || r.OccupancyPercent <= 100 {
			continue
		}
		total++
		if total > limit {
			continue
		}
		out = append(out, domain.Issuef(domain.CategoryInvalidOccupancy, "Invalid occupancy: %s at %s%% (%s)",
			r.Facility(), strconv.FormatFloat(r.OccupancyPercent, 'f', -1, 64), r.Timestamp.Format(time.RFC3339)))
	}
	if total > limit {
		out = append(out, domain.Issuef(domain.CategoryInvalidOccupancy,
			"... and %d more invalid occupancy records", total-limit))
	}
	return out
}

// extendedZero flags facilities whose earliest and latest daytime zero
// readings in the window lie at least the span threshold apart. Readings in
// between are not inspected, so two isolated zeros far enough apart trip it.
func extendedZero(records []domain.Record, cutoff time.Time, cfg CompiledConfig) []domain.Issue {
	type span struct {
		first, last time.Time
		zeros       int
	}
	spans := make(map[domain.FacilityKey]*span)
	for i := range records {
		r := &records[i]
		if r.Timestamp.Before(cutoff) || r.Hour < cfg.DaytimeStartHour || r.Hour >= cfg.DaytimeEndHour {
			continue
		}
		if r.OccupancyPercent != 0 {
			continue
		}
		s, ok := spans[r.Facility()]
		if !ok {
			spans[r.Facility()] = &span{first: r.Timestamp, last: r.Timestamp, zeros: 1}
			continue
		}
		s.zeros++
		if r.Timestamp.Before(s.first) {
			s.first = r.Timestamp
		}
		if r.Timestamp.After(s.last) {
			s.last = r.Timestamp
		}
	}

	keys := make([]domain.FacilityKey, 0, len(spans))
	for k := range spans {
		keys = append(keys, k)
	}
	sortKeys(keys)

	var out []domain.Issue
	for _, k := range keys {
		s := spans[k]
		if s.zeros < 2 {
			continue
		}
		if d := s.last.Sub(s.first); d >= cfg.ZeroSpanThreshold {
			out = append(out, domain.Issuef(domain.CategoryExtendedZero,
				"Extended zero occupancy: %s at 0%% for %s during daytime hours", k, d))
		}
	}
	return out
}

// formatHours renders whole-hour windows as "24 hours" and anything else as
// a Go duration.
func formatHours(d time.Duration) string {
	if d%time.Hour == 0 {
		return strconv.Itoa(int(d/time.Hour)) + " hours"
	}
	return d.String()
}

func recordIssues(metrics *observability.Metrics, found []domain.Issue) {
	for _, issue := range found {
		metrics.AuditIssues.WithLabelValues(string(issue.Category)).Inc()
	}
}
