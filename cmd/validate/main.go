// Command validate audits the compiled dataset and the raw scrape files for
// irregularities and files one aggregated issue per audit that found any.
//
// Findings never fail the command. It exits non-zero only when an audit
// cannot run at all, for example because the dataset does not exist yet.
//
// Usage:
//
//	go run ./cmd/validate -mode compiled
//	go run ./cmd/validate -mode raw -dry-run
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
	"github.com/couchcryptid/occupancy-etl/internal/adapter/github"
	"github.com/couchcryptid/occupancy-etl/internal/adapter/kafka"
	"github.com/couchcryptid/occupancy-etl/internal/audit"
	"github.com/couchcryptid/occupancy-etl/internal/config"
	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/issues"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

const (
	modeCompiled = "compiled"
	modeRaw      = "raw"
	modeAll      = "all"
)

// phase is one audit run and what it found.
type phase struct {
	name   string
	issues []domain.Issue
	report issues.Report
}

func (p *phase) passed() bool { return len(p.issues) == 0 }

func main() {
	mode := flag.String("mode", modeAll, "audit to run: compiled, raw or all")
	dryRun := flag.Bool("dry-run", false, "log the issue that would be created instead of submitting it")
	flag.Parse()

	switch *mode {
	case modeCompiled, modeRaw, modeAll:
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, *mode, *dryRun, logger, metrics)
	metrics.PushIfEnabled(cfg, logger)
	if code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string, dryRun bool, logger *slog.Logger, metrics *observability.Metrics) int {
	start := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues("validate").Observe(time.Since(start).Seconds())
	}()

	clock := clockwork.NewRealClock()

	var phases []*phase
	if mode == modeCompiled || mode == modeAll {
		p, err := compiledPhase(cfg, clock, logger, metrics)
		if err != nil {
			logger.Error("compiled audit failed", "error", err)
			return 1
		}
		phases = append(phases, p)
	}
	if mode == modeRaw || mode == modeAll {
		p, err := rawPhase(cfg, clock, logger, metrics)
		if err != nil {
			logger.Error("raw audit failed", "error", err)
			return 1
		}
		phases = append(phases, p)
	}

	tracker, closeTracker, err := newTracker(cfg, logger)
	if err != nil {
		logger.Error("issue tracker setup failed", "error", err)
		return 1
	}
	defer closeTracker()
	reporter := issues.NewReporter(tracker, dryRun, cfg.IssueTimeout, logger, metrics)

	printSummary(phases)
	for _, p := range phases {
		if p.passed() {
			logger.Info("no irregularities found", "audit", p.name)
			continue
		}
		reporter.Report(ctx, p.report)
	}
	return 0
}

func compiledPhase(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*phase, error) {
	records, found, err := dataset.NewStore(cfg.DatasetPath, cfg.Location).Load()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("dataset not found at %s: run transform first", cfg.DatasetPath)
	}
	logger.Info("loaded dataset", "path", cfg.DatasetPath, "rows", len(records))

	auditor := audit.NewCompiledAuditor(audit.CompiledConfigFrom(cfg), clock, logger, metrics)
	findings := auditor.Audit(records)
	return &phase{
		name:   "Compiled dataset audit",
		issues: findings,
		report: audit.CompiledReport(findings, clock.Now().In(cfg.Location)),
	}, nil
}

func rawPhase(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*phase, error) {
	if _, err := os.Stat(cfg.RawDir); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("scrape directory not found: %s", cfg.RawDir)
	}

	source := files.NewSnapshots(cfg.RawDir, logger)
	auditor := audit.NewRawAuditor(audit.RawConfigFrom(cfg), source, clock, cfg.Location, logger, metrics)
	found, err := auditor.Audit()
	if err != nil {
		return nil, err
	}
	return &phase{
		name:   "Raw scrape audit",
		issues: found,
		report: audit.RawReport(found, clock.Now().In(cfg.Location)),
	}, nil
}

// newTracker returns the configured tracker and a function releasing it. The
// "none" tracker is nil, which makes the reporter log reports only.
func newTracker(cfg *config.Config, logger *slog.Logger) (issues.Tracker, func(), error) {
	switch cfg.IssueTracker {
	case config.TrackerGitHub:
		return github.NewTracker(cfg.IssueLabel, cfg.GitHubRepo), func() {}, nil
	case config.TrackerKafka:
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaIssueTopic, clockwork.NewRealClock(), logger)
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}, nil
	case config.TrackerNone:
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown issue tracker %q", cfg.IssueTracker)
}

func printSummary(phases []*phase) {
	fmt.Println()
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31m%d issues\033[0m", len(p.issues))
		}
		fmt.Printf("  %-30s %s\n", p.name, status)
	}
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, issue := range p.issues {
			fmt.Printf("  [%d] %s\n", i+1, issue.Message)
		}
	}
	fmt.Println()
}
