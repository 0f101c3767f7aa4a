package audit

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/config"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

// RawConfig holds the thresholds of the raw scrape audit.
type RawConfig struct {
	HistoryDays           int
	MinScrapesForMissing  int
	MinCoverageForMissing time.Duration
	GapThreshold          time.Duration
}

// RawConfigFrom extracts the raw audit settings from cfg.
func RawConfigFrom(cfg *config.Config) RawConfig {
	return RawConfig{
		HistoryDays:           cfg.HistoryDays,
		MinScrapesForMissing:  cfg.MinScrapesForMissing,
		MinCoverageForMissing: cfg.MinCoverageForMissing,
		GapThreshold:          cfg.GapThreshold,
	}
}

// ScrapeSource returns the snapshots whose file name carries a given day.
type ScrapeSource interface {
	ForDate(d domain.Date) ([]domain.Snapshot, error)
}

// RawAuditor checks the raw scrape files of today against the preceding days.
// Facilities are compared under their raw names, so a rename upstream shows
// up here as one missing and one new facility until an alias is added.
type RawAuditor struct {
	cfg     RawConfig
	source  ScrapeSource
	clock   clockwork.Clock
	loc     *time.Location
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRawAuditor creates a RawAuditor. Days are cut in loc.
func NewRawAuditor(cfg RawConfig, source ScrapeSource, clock clockwork.Clock, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *RawAuditor {
	return &RawAuditor{
		cfg:     cfg,
		source:  source,
		clock:   clock,
		loc:     loc,
		logger:  logger,
		metrics: metrics,
	}
}

// Audit runs every raw-scrape check for today and returns the findings in
// check order.
func (a *RawAuditor) Audit() ([]domain.Issue, error) {
	now := a.clock.Now().In(a.loc)
	today := domain.DateOf(now)

	var history History
	for offset := 1; offset <= a.cfg.HistoryDays; offset++ {
		scrapes, err := a.source.ForDate(domain.DateOf(now.AddDate(0, 0, -offset)))
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		history.Add(scrapes)
	}
	a.logger.Info("loaded scrape history", "days", a.cfg.HistoryDays, "facilities", len(history.facilities))

	scrapes, err := a.source.ForDate(today)
	if err != nil {
		return nil, fmt.Errorf("load today's scrapes: %w", err)
	}
	a.logger.Info("loaded today's scrapes", "date", today.String(), "scrapes", len(scrapes))

	checks := []struct {
		name string
		run  func() []domain.Issue
	}{
		{"missing_facility", func() []domain.Issue {
			return MissingFacilities(scrapes, &history, a.cfg.MinScrapesForMissing, a.cfg.MinCoverageForMissing)
		}},
		{"new_facility", func() []domain.Issue { return NewFacilities(scrapes, &history) }},
		{"capacity_change", func() []domain.Issue { return CapacityChanges(scrapes, &history) }},
		{"scrape_gap", func() []domain.Issue { return ScrapeGaps(scrapes, today, a.cfg.GapThreshold, a.loc) }},
	}

	var all []domain.Issue
	for _, c := range checks {
		found := c.run()
		if len(found) > 0 {
			a.logger.Warn("raw audit found issues", "check", c.name, "count", len(found))
		}
		all = append(all, found...)
	}
	recordIssues(a.metrics, all)
	return all, nil
}

// History is the set of raw facilities seen over the preceding days and the
// first positive capacity seen for each.
type History struct {
	facilities map[domain.FacilityKey]struct{}
	capacities map[domain.FacilityKey]int
}

// Add folds scrapes into the history. Capacities already known are kept.
func (h *History) Add(scrapes []domain.Snapshot) {
	if h.facilities == nil {
		h.facilities = make(map[domain.FacilityKey]struct{})
		h.capacities = make(map[domain.FacilityKey]int)
	}
	for _, snap := range scrapes {
		for _, rec := range snap.Facilities() {
			key := rec.Key()
			h.facilities[key] = struct{}{}
			if _, known := h.capacities[key]; known {
				continue
			}
			if c, ok := rec.Capacity(); ok && c > 0 {
				h.capacities[key] = c
			}
		}
	}
}

// Contains reports whether key was seen in the history.
func (h *History) Contains(key domain.FacilityKey) bool {
	_, ok := h.facilities[key]
	return ok
}

// Capacity returns the historical capacity of key.
func (h *History) Capacity(key domain.FacilityKey) (int, bool) {
	c, ok := h.capacities[key]
	return c, ok
}

// MissingFacilities reports historical facilities absent from every scrape of
// today. Nothing is reported until today has at least minScrapes scrapes
// spanning at least minCoverage, so a facility is not flagged missing on the
// strength of one early fetch.
func MissingFacilities(today []domain.Snapshot, history *History, minScrapes int, minCoverage time.Duration) []domain.Issue {
	if len(today) == 0 || len(today) < minScrapes {
		return nil
	}
	first, last := scrapeRange(today)
	coverage := last.Sub(first)
	if coverage < minCoverage {
		return nil
	}

	seen := facilitySet(today)
	var missing []domain.FacilityKey
	for key := range history.facilities {
		if _, ok := seen[key]; !ok {
			missing = append(missing, key)
		}
	}
	sortKeys(missing)

	out := make([]domain.Issue, 0, len(missing))
	for _, key := range missing {
		out = append(out, domain.Issuef(domain.CategoryMissingFacility,
			"Missing facility: %s (not seen in %d scrapes over %s)", key, len(today), coverage))
	}
	return out
}

// NewFacilities reports facilities scraped today that the history lacks.
func NewFacilities(today []domain.Snapshot, history *History) []domain.Issue {
	var added []domain.FacilityKey
	for key := range facilitySet(today) {
		if !history.Contains(key) {
			added = append(added, key)
		}
	}
	sortKeys(added)

	out := make([]domain.Issue, 0, len(added))
	for _, key := range added {
		out = append(out, domain.Issuef(domain.CategoryNewFacility, "New facility: %s", key))
	}
	return out
}

// CapacityChanges compares the first positive capacity parsed today for each
// facility with its historical capacity. Facilities are reported in the order
// they first appear today.
func CapacityChanges(today []domain.Snapshot, history *History) []domain.Issue {
	var (
		out  []domain.Issue
		seen = make(map[domain.FacilityKey]struct{})
	)
	for _, snap := range today {
		for _, rec := range snap.Facilities() {
			key := rec.Key()
			if _, done := seen[key]; done {
				continue
			}
			current, ok := rec.Capacity()
			if !ok || current <= 0 {
				continue
			}
			seen[key] = struct{}{}
			previous, known := history.Capacity(key)
			if !known || previous == current {
				continue
			}
			out = append(out, domain.Issuef(domain.CategoryCapacityChange,
				"Capacity change: %s (%d -> %d)", key, previous, current))
		}
	}
	return out
}

// ScrapeGaps reports every pair of consecutive scrapes of day at least
// threshold apart. With fewer than two scrapes it reports a single
// insufficient-scrapes issue instead.
func ScrapeGaps(scrapes []domain.Snapshot, day domain.Date, threshold time.Duration, loc *time.Location) []domain.Issue {
	if len(scrapes) < 2 {
		return []domain.Issue{domain.Issuef(domain.CategoryScrapeGap,
			"Insufficient scrapes: only %d scrapes found for %s", len(scrapes), day)}
	}

	times := make([]time.Time, len(scrapes))
	for i, s := range scrapes {
		times[i] = s.ScrapedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var out []domain.Issue
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		if gap < threshold {
			continue
		}
		out = append(out, domain.Issuef(domain.CategoryScrapeGap, "Scrape gap: %s between %s and %s",
			gap, times[i-1].In(loc).Format("15:04"), times[i].In(loc).Format("15:04")))
	}
	return out
}

func facilitySet(scrapes []domain.Snapshot) map[domain.FacilityKey]struct{} {
	out := make(map[domain.FacilityKey]struct{})
	for _, snap := range scrapes {
		for _, rec := range snap.Facilities() {
			out[rec.Key()] = struct{}{}
		}
	}
	return out
}

func scrapeRange(scrapes []domain.Snapshot) (first, last time.Time) {
	first, last = scrapes[0].ScrapedAt, scrapes[0].ScrapedAt
	for _, s := range scrapes[1:] {
		if s.ScrapedAt.Before(first) {
			first = s.ScrapedAt
		}
		if s.ScrapedAt.After(last) {
			last = s.ScrapedAt
		}
	}
	return first, last
}

func sortKeys(keys []domain.FacilityKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
