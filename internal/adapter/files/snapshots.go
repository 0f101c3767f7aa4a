// Package files reads the file-based inputs of the pipeline: raw scrapes,
// weather fetches, holiday calendars and the facility alias config.
package files

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

const (
	snapshotPattern    = "pool_data_*.json"
	snapshotDateLayout = "20060102"
)

// SkipReason labels why a raw snapshot file was not admitted.
type SkipReason string

const (
	SkipBeforeCutoff SkipReason = "before_cutoff"
	SkipMalformed    SkipReason = "malformed"
)

// SnapshotBatch is the result of reading raw snapshots after a cutoff.
type SnapshotBatch struct {
	Snapshots []domain.Snapshot
	Skipped   map[SkipReason]int
}

// Snapshots reads raw scrape files named pool_data_YYYYMMDD_HHMMSS.json from
// one directory. Malformed files are skipped with a warning.
type Snapshots struct {
	dir    string
	logger *slog.Logger
}

// NewSnapshots creates a reader for the raw scrape directory dir.
func NewSnapshots(dir string, logger *slog.Logger) *Snapshots {
	return &Snapshots{dir: dir, logger: logger}
}

// Paths lists every raw scrape file in name order, which is scrape order.
func (s *Snapshots) Paths() ([]string, error) {
	return globSorted(s.dir, snapshotPattern)
}

// Since reads every snapshot whose scrape_timestamp is not before since.
// A zero since admits all files.
func (s *Snapshots) Since(since time.Time) (SnapshotBatch, error) {
	paths, err := s.Paths()
	if err != nil {
		return SnapshotBatch{}, err
	}
	batch := SnapshotBatch{Skipped: make(map[SkipReason]int)}
	for _, path := range paths {
		snap, err := readSnapshot(path)
		if err != nil {
			s.logger.Warn("skipping invalid snapshot file", "file", path, "error", err)
			batch.Skipped[SkipMalformed]++
			continue
		}
		if !since.IsZero() && snap.ScrapedAt.Before(since) {
			batch.Skipped[SkipBeforeCutoff]++
			continue
		}
		if len(snap.IgnoredKeys) > 0 {
			s.logger.Debug("ignored snapshot keys", "file", path, "keys", snap.IgnoredKeys)
		}
		batch.Snapshots = append(batch.Snapshots, snap)
	}
	return batch, nil
}

// ForDate reads the snapshots whose file name carries day d, in scrape order.
func (s *Snapshots) ForDate(d domain.Date) ([]domain.Snapshot, error) {
	day := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	paths, err := globSorted(s.dir, "pool_data_"+day.Format(snapshotDateLayout)+"_*.json")
	if err != nil {
		return nil, err
	}
	var out []domain.Snapshot
	for _, path := range paths {
		snap, err := readSnapshot(path)
		if err != nil {
			s.logger.Warn("skipping invalid snapshot file", "file", path, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// SnapshotFileName returns the conventional file name for a scrape taken at t.
func SnapshotFileName(t time.Time) string {
	return "pool_data_" + t.Format("20060102_150405") + ".json"
}

func readSnapshot(path string) (domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.ParseSnapshot(data)
}

func globSorted(dir, pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}
