package issues

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

type fakeTracker struct {
	id       string
	err      error
	got      []Report
	deadline bool
}

func (f *fakeTracker) Submit(ctx context.Context, report Report) (string, error) {
	f.got = append(f.got, report)
	_, f.deadline = ctx.Deadline()
	return f.id, f.err
}

var testReport = Report{
	Kind:  "raw",
	Title: "Data Irregularities Detected - Raw Scrapes (2026-01-17)",
	Body:  "- New facility: pool:Südbad",
}

func TestReporter_Report(t *testing.T) {
	tests := []struct {
		name        string
		tracker     *fakeTracker
		dryRun      bool
		want        bool
		wantOutcome string
		wantLog     string
		wantCalls   int
	}{
		{
			name:        "submitted",
			tracker:     &fakeTracker{id: "https://github.com/o/r/issues/7"},
			want:        true,
			wantOutcome: "submitted",
			wantLog:     "issues/7",
			wantCalls:   1,
		},
		{
			name:        "dry run never calls the tracker",
			tracker:     &fakeTracker{},
			dryRun:      true,
			want:        true,
			wantOutcome: "dry_run",
			wantLog:     "New facility: pool:Südbad",
		},
		{
			name:        "tracker failure is not fatal",
			tracker:     &fakeTracker{err: assert.AnError},
			want:        false,
			wantOutcome: "failed",
			wantLog:     "failed to create issue",
			wantCalls:   1,
		},
		{
			name:        "tracker tool missing",
			tracker:     &fakeTracker{err: fmt.Errorf("%w: gh not installed", ErrTrackerUnavailable)},
			want:        false,
			wantOutcome: "failed",
			wantLog:     "issue tracker unavailable",
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			metrics := observability.NewMetricsForTesting()
			r := NewReporter(tt.tracker, tt.dryRun, time.Second, slog.New(slog.NewTextHandler(&buf, nil)), metrics)

			got := r.Report(context.Background(), testReport)

			assert.Equal(t, tt.want, got)
			assert.Len(t, tt.tracker.got, tt.wantCalls)
			assert.Contains(t, buf.String(), tt.wantLog)
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.IssueReports.WithLabelValues(tt.wantOutcome)), 1e-9)
			if tt.wantCalls > 0 {
				assert.True(t, tt.tracker.deadline, "submission runs with a timeout")
			}
		})
	}
}

func TestReporter_NoTracker(t *testing.T) {
	r := NewReporter(nil, false, 0, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
	assert.False(t, r.Report(context.Background(), testReport))
}
