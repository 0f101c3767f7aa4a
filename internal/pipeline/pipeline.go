// Package pipeline merges newly scraped snapshots into the persisted dataset.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

// SnapshotSource reads the raw snapshots scraped at or after a cutoff.
type SnapshotSource interface {
	Since(since time.Time) (files.SnapshotBatch, error)
}

// Transformer converts an observation into a canonical dataset row.
type Transformer interface {
	Transform(obs domain.Observation) domain.Record
}

// DatasetStore loads and replaces the persisted dataset.
type DatasetStore interface {
	Load() ([]domain.Record, bool, error)
	Save(records []domain.Record) error
}

// Mirror receives every validated batch of new rows after the merge.
type Mirror interface {
	WriteRecords(ctx context.Context, records []domain.Record) error
}

// Result summarises one merge run.
type Result struct {
	Since         time.Time // zero when no dataset existed
	FilesAdmitted int
	NewRows       int
	TotalRows     int
	Written       bool
}

// Option configures a Merger.
type Option func(*Merger)

// WithMirror sends validated new rows to m after each successful merge.
func WithMirror(m Mirror) Option {
	return func(mg *Merger) { mg.mirror = m }
}

// Merger runs the incremental merge: only snapshots at or after the newest
// persisted timestamp are ingested, enriched, validated and merged.
type Merger struct {
	source            SnapshotSource
	transformer       Transformer
	store             DatasetStore
	facilityTypesPath string
	mirror            Mirror
	logger            *slog.Logger
	metrics           *observability.Metrics
}

// New creates a Merger. The facility type lookup is rewritten to
// facilityTypesPath on every run that changes the dataset.
func New(source SnapshotSource, transformer Transformer, store DatasetStore, facilityTypesPath string, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Merger {
	m := &Merger{
		source:            source,
		transformer:       transformer,
		store:             store,
		facilityTypesPath: facilityTypesPath,
		logger:            logger,
		metrics:           metrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one merge. Runs that find nothing new return without touching
// the persisted files.
func (m *Merger) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		m.metrics.RunDuration.WithLabelValues("transform").Observe(time.Since(start).Seconds())
	}()

	var res Result

	existing, found, err := m.store.Load()
	if err != nil {
		return res, fmt.Errorf("load dataset: %w", err)
	}
	if found {
		res.Since, _ = dataset.MaxTimestamp(existing)
		m.logger.Info("loaded existing dataset", "rows", len(existing), "since", res.Since)
	} else {
		m.logger.Info("no existing dataset, processing all snapshots")
	}

	batch, err := m.source.Since(res.Since)
	if err != nil {
		return res, fmt.Errorf("read snapshots: %w", err)
	}
	for reason, n := range batch.Skipped {
		m.metrics.FilesSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
	res.FilesAdmitted = len(batch.Snapshots)
	m.metrics.FilesAdmitted.Add(float64(res.FilesAdmitted))
	if res.FilesAdmitted == 0 {
		m.logger.Warn("no new snapshot files to transform")
		return res, nil
	}

	records := m.transform(batch.Snapshots)
	if len(records) == 0 {
		m.logger.Warn("no observations in new snapshot files")
		return res, nil
	}

	validated, stats := dataset.Validate(records, m.logger)
	m.metrics.RowsDropped.WithLabelValues("out_of_range").Add(float64(stats.OutOfRange))
	m.metrics.RowsDropped.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	if len(validated) == 0 {
		m.logger.Warn("no valid rows after validation")
		return res, nil
	}
	res.NewRows = len(validated)

	merged := dataset.Merge(existing, validated)
	if err := m.store.Save(merged); err != nil {
		return res, fmt.Errorf("save dataset: %w", err)
	}
	res.TotalRows = len(merged)
	res.Written = true
	m.metrics.RowsMerged.Add(float64(res.NewRows))
	m.metrics.RowsPersisted.Set(float64(res.TotalRows))

	types := dataset.BuildFacilityTypes(merged)
	if err := dataset.SaveFacilityTypes(m.facilityTypesPath, types); err != nil {
		return res, fmt.Errorf("save facility types: %w", err)
	}

	m.mirrorRecords(ctx, validated)

	m.logger.Info("dataset merged",
		"files", res.FilesAdmitted,
		"new_rows", res.NewRows,
		"total_rows", res.TotalRows,
		"facilities", len(types),
	)
	return res, nil
}

func (m *Merger) transform(snapshots []domain.Snapshot) []domain.Record {
	var (
		out     []domain.Record
		dropped int
	)
	for _, snap := range snapshots {
		obs, n := snap.Observations()
		if n > 0 {
			m.logger.Warn("dropping observations without occupancy_percent",
				"scraped_at", snap.ScrapedAt, "count", n)
		}
		dropped += n
		for _, o := range obs {
			out = append(out, m.transformer.Transform(o))
		}
	}
	m.metrics.RowsDropped.WithLabelValues("missing_occupancy").Add(float64(dropped))
	return out
}

// mirrorRecords is best effort; the persisted dataset stays the source of truth.
func (m *Merger) mirrorRecords(ctx context.Context, records []domain.Record) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.WriteRecords(ctx, records); err != nil {
		m.metrics.MirrorErrors.Inc()
		m.logger.Error("mirror write failed", "error", err, "rows", len(records))
		return
	}
	m.logger.Debug("mirrored new rows", "rows", len(records))
}
