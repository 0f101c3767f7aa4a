// Package issues submits aggregated audit reports to an issue tracker.
package issues

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

// ErrTrackerUnavailable is wrapped by trackers whose client tool or endpoint
// cannot be reached at all.
var ErrTrackerUnavailable = errors.New("issue tracker unavailable")

// Report is one aggregated issue: a title and a markdown body.
type Report struct {
	Kind  string // audit that produced the report, e.g. "compiled" or "raw"
	Title string
	Body  string
}

// Tracker files a report and returns the tracker-assigned identifier.
type Tracker interface {
	Submit(ctx context.Context, report Report) (string, error)
}

// Reporter submits reports and never fails the calling run. Submission
// failures are logged and reported as false.
type Reporter struct {
	tracker Tracker
	dryRun  bool
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReporter creates a Reporter. With dryRun set, or with a nil tracker,
// reports are only logged.
func NewReporter(tracker Tracker, dryRun bool, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Reporter {
	return &Reporter{
		tracker: tracker,
		dryRun:  dryRun,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Report submits report and reports whether it was accepted.
func (r *Reporter) Report(ctx context.Context, report Report) bool {
	if r.dryRun {
		r.logger.Info("dry run: would create issue", "title", report.Title, "body", report.Body)
		r.metrics.IssueReports.WithLabelValues("dry_run").Inc()
		return true
	}
	if r.tracker == nil {
		r.logger.Warn("no issue tracker configured, report not submitted", "title", report.Title)
		r.metrics.IssueReports.WithLabelValues("skipped").Inc()
		return false
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	id, err := r.tracker.Submit(ctx, report)
	if err != nil {
		if errors.Is(err, ErrTrackerUnavailable) {
			r.logger.Error("issue tracker unavailable, report not submitted", "error", err, "title", report.Title)
		} else {
			r.logger.Error("failed to create issue", "error", err, "title", report.Title)
		}
		r.metrics.IssueReports.WithLabelValues("failed").Inc()
		return false
	}
	r.logger.Info("created issue", "id", id, "title", report.Title)
	r.metrics.IssueReports.WithLabelValues("submitted").Inc()
	return true
}
