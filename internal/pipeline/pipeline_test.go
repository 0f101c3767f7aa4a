package pipeline_test

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
	"github.com/couchcryptid/occupancy-etl/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	snapshots []domain.Snapshot
	skipped   map[files.SkipReason]int
	calls     []time.Time
	err       error
}

func (m *mockSource) Since(since time.Time) (files.SnapshotBatch, error) {
	m.calls = append(m.calls, since)
	if m.err != nil {
		return files.SnapshotBatch{}, m.err
	}
	var out []domain.Snapshot
	for _, s := range m.snapshots {
		if since.IsZero() || !s.ScrapedAt.Before(since) {
			out = append(out, s)
		}
	}
	return files.SnapshotBatch{Snapshots: out, Skipped: m.skipped}, nil
}

type mockStore struct {
	records []domain.Record
	found   bool
	saves   int
	saveErr error
}

func (m *mockStore) Load() ([]domain.Record, bool, error) {
	return m.records, m.found, nil
}

func (m *mockStore) Save(records []domain.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records = records
	m.found = true
	return nil
}

type mockMirror struct {
	got []domain.Record
	err error
}

func (m *mockMirror) WriteRecords(_ context.Context, records []domain.Record) error {
	m.got = append(m.got, records...)
	return m.err
}

// --- helpers ---

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

type facility struct {
	name, typ string
	occupancy float64
}

func snapshot(t *testing.T, ts time.Time, facilities ...facility) domain.Snapshot {
	t.Helper()
	stamp := ts.Format(time.RFC3339)
	items := make([]string, 0, len(facilities))
	for _, f := range facilities {
		items = append(items, fmt.Sprintf(
			`{"pool_name":%q,"facility_type":%q,"raw_occupancy":"1/100 persons","occupancy_percent":%g,"is_open":true,"timestamp":%q}`,
			f.name, f.typ, f.occupancy, stamp))
	}
	doc := fmt.Sprintf(`{"scrape_timestamp":%q,"facilities":[%s]}`, stamp, strings.Join(items, ","))
	snap, err := domain.ParseSnapshot([]byte(doc))
	require.NoError(t, err)
	return snap
}

func newMerger(t *testing.T, src pipeline.SnapshotSource, store pipeline.DatasetStore, opts ...pipeline.Option) (*pipeline.Merger, string, *observability.Metrics) {
	t.Helper()
	loc := berlin(t)
	aliases := domain.NewAliasMap(map[string]string{"pool:Nordbad (alt)": "Nordbad"})
	tfm := pipeline.NewTransformer(aliases, loc, nil, nil)
	typesPath := filepath.Join(t.TempDir(), "facility_types.json")
	metrics := observability.NewMetricsForTesting()
	return pipeline.New(src, tfm, store, typesPath, slog.New(slog.DiscardHandler), metrics, opts...), typesPath, metrics
}

// --- tests ---

func TestMerger_Run_FirstRun(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	src := &mockSource{snapshots: []domain.Snapshot{
		snapshot(t, t0.Add(15*time.Minute), facility{"Westbad", "pool", 12}, facility{"Nordbad (alt)", "pool", 30}),
		snapshot(t, t0, facility{"Westbad", "pool", 10}, facility{"Westbad", "sauna", 5}),
	}}
	store := &mockStore{}
	m, typesPath, metrics := newMerger(t, src, store)

	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Since.IsZero())
	assert.Equal(t, 2, res.FilesAdmitted)
	assert.Equal(t, 4, res.NewRows)
	assert.True(t, res.Written)
	require.Equal(t, 1, store.saves)

	var got []string
	for _, r := range store.records {
		got = append(got, r.Timestamp.Format("15:04")+" "+r.Facility().String())
	}
	want := []string{"10:00 pool:Westbad", "10:00 sauna:Westbad", "10:15 pool:Nordbad", "10:15 pool:Westbad"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("persisted order mismatch (-want +got):\n%s", diff)
	}

	types, err := dataset.LoadFacilityTypes(typesPath)
	require.NoError(t, err)
	assert.Equal(t, dataset.FacilityTypes{
		"pool:Nordbad":  "pool",
		"pool:Westbad":  "pool",
		"sauna:Westbad": "sauna",
	}, types)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.RowsPersisted), 1e-9)
}

func TestMerger_Run_UsesMaxTimestampAsCutoff(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	store := &mockStore{}
	src := &mockSource{snapshots: []domain.Snapshot{
		snapshot(t, t0, facility{"Westbad", "pool", 10}),
		snapshot(t, t0.Add(time.Hour), facility{"Westbad", "pool", 20}),
	}}
	m, _, _ := newMerger(t, src, store)
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	src.snapshots = append(src.snapshots, snapshot(t, t0.Add(2*time.Hour), facility{"Westbad", "pool", 30}))
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, src.calls, 2)
	assert.True(t, src.calls[1].Equal(t0.Add(time.Hour)))
	assert.Equal(t, 2, res.FilesAdmitted, "file at the cutoff is re-admitted")
	assert.Equal(t, 3, res.TotalRows)
	assert.InDelta(t, 20, store.records[1].OccupancyPercent, 1e-9)
}

func TestMerger_Run_Idempotent(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	store := &mockStore{}
	src := &mockSource{snapshots: []domain.Snapshot{
		snapshot(t, t0, facility{"Westbad", "pool", 10}, facility{"Nordbad", "pool", 11}),
		snapshot(t, t0.Add(15*time.Minute), facility{"Westbad", "pool", 12}),
	}}
	m, _, _ := newMerger(t, src, store)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	first := append([]domain.Record(nil), store.records...)

	_, err = m.Run(context.Background())
	require.NoError(t, err)

	timeEqual := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff(first, store.records, timeEqual); diff != "" {
		t.Errorf("second run changed the dataset (-first +second):\n%s", diff)
	}
}

func TestMerger_Run_NothingNew(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	existing := domain.Record{Timestamp: t0, FacilityName: "Westbad", FacilityType: "pool", OccupancyPercent: 10}

	tests := []struct {
		name      string
		snapshots []domain.Snapshot
	}{
		{"no files after cutoff", []domain.Snapshot{snapshot(t, t0.Add(-time.Hour), facility{"Westbad", "pool", 5})}},
		{"empty snapshot", []domain.Snapshot{snapshot(t, t0.Add(time.Hour))}},
		{"every row invalid", []domain.Snapshot{snapshot(t, t0.Add(time.Hour), facility{"Westbad", "pool", 140})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{records: []domain.Record{existing}, found: true}
			m, typesPath, _ := newMerger(t, &mockSource{snapshots: tt.snapshots}, store)

			res, err := m.Run(context.Background())
			require.NoError(t, err)
			assert.False(t, res.Written)
			assert.Zero(t, store.saves)

			_, err = dataset.LoadFacilityTypes(typesPath)
			assert.ErrorIs(t, err, dataset.ErrFacilityTypesNotFound)
		})
	}
}

func TestMerger_Run_Mirror(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	src := &mockSource{snapshots: []domain.Snapshot{snapshot(t, t0, facility{"Westbad", "pool", 10})}}

	t.Run("receives validated rows", func(t *testing.T) {
		mirror := &mockMirror{}
		m, _, _ := newMerger(t, src, &mockStore{}, pipeline.WithMirror(mirror))
		_, err := m.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, mirror.got, 1)
		assert.Equal(t, "Westbad", mirror.got[0].FacilityName)
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		store := &mockStore{}
		m, _, metrics := newMerger(t, src, store, pipeline.WithMirror(&mockMirror{err: assert.AnError}))
		res, err := m.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Written)
		assert.Equal(t, 1, store.saves)
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.MirrorErrors), 1e-9)
	})
}

func TestMerger_Run_Errors(t *testing.T) {
	loc := berlin(t)
	t0 := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)

	t.Run("source", func(t *testing.T) {
		m, _, _ := newMerger(t, &mockSource{err: assert.AnError}, &mockStore{})
		_, err := m.Run(context.Background())
		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "read snapshots")
	})

	t.Run("save", func(t *testing.T) {
		src := &mockSource{snapshots: []domain.Snapshot{snapshot(t, t0, facility{"Westbad", "pool", 10})}}
		m, typesPath, _ := newMerger(t, src, &mockStore{saveErr: assert.AnError})
		_, err := m.Run(context.Background())
		require.ErrorIs(t, err, assert.AnError)

		_, err = dataset.LoadFacilityTypes(typesPath)
		assert.ErrorIs(t, err, dataset.ErrFacilityTypesNotFound)
	})
}

func TestMerger_Run_CountsSkippedFiles(t *testing.T) {
	src := &mockSource{skipped: map[files.SkipReason]int{files.SkipMalformed: 2}}
	m, _, metrics := newMerger(t, src, &mockStore{})

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FilesSkipped.WithLabelValues("malformed")), 1e-9)
}
