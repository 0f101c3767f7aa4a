package dataset

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

func TestValidate(t *testing.T) {
	loc := berlin(t)
	ts := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)

	first := sampleRecord(loc, ts, "Nordbad", "pool", 20)
	dup := sampleRecord(loc, ts, "Nordbad", "pool", 35)
	sameNameOtherType := sampleRecord(loc, ts, "Nordbad", "sauna", 10)

	tests := []struct {
		name      string
		in        []domain.Record
		wantOcc   []float64
		wantStats ValidationStats
	}{
		{
			name:    "bounds are inclusive",
			in:      []domain.Record{sampleRecord(loc, ts, "A", "pool", 0), sampleRecord(loc, ts, "B", "pool", 100)},
			wantOcc: []float64{0, 100},
		},
		{
			name: "out of range dropped",
			in: []domain.Record{
				sampleRecord(loc, ts, "A", "pool", -1),
				sampleRecord(loc, ts, "B", "pool", 100.1),
				sampleRecord(loc, ts, "C", "pool", 50),
			},
			wantOcc:   []float64{50},
			wantStats: ValidationStats{OutOfRange: 2},
		},
		{
			name:      "duplicate keeps first",
			in:        []domain.Record{first, dup, sameNameOtherType},
			wantOcc:   []float64{20, 10},
			wantStats: ValidationStats{Duplicates: 1},
		},
		{
			name: "empty batch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := Validate(tt.in, slog.New(slog.DiscardHandler))
			assert.Equal(t, tt.wantStats, stats)
			var occ []float64
			for _, r := range out {
				occ = append(occ, r.OccupancyPercent)
			}
			assert.Equal(t, tt.wantOcc, occ)
		})
	}
}

func TestValidate_LogsCounts(t *testing.T) {
	loc := berlin(t)
	ts := time.Date(2026, 1, 17, 10, 0, 0, 0, loc)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, stats := Validate([]domain.Record{sampleRecord(loc, ts, "A", "pool", 140)}, logger)

	require.Equal(t, 1, stats.OutOfRange)
	assert.Contains(t, buf.String(), "invalid occupancy_percent")
	assert.Contains(t, buf.String(), "count=1")
}
