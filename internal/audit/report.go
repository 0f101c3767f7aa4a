package audit

import (
	"strings"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
	"github.com/couchcryptid/occupancy-etl/internal/issues"
)

// Report kinds, one per audit.
const (
	KindCompiled = "compiled"
	KindRaw      = "raw"
)

var compiledActions = []string{
	"For new facility types: Verify if intentional upstream change",
	"For missing facility types: Check if removed or renamed upstream",
	"For invalid occupancy: Check raw data source for errors",
	"For extended zero occupancy: Verify facility is still operational",
}

var rawActions = []string{
	"For new facilities: Verify if intentional, update documentation",
	"For missing facilities: Check if removed upstream or add to `facility_aliases.json`",
	"For capacity changes: Verify if intentional change",
	"For scrape gaps: Check scraper health and GitHub Actions logs",
}

// CompiledReport aggregates compiled-data findings into one issue report.
func CompiledReport(found []domain.Issue, detectedAt time.Time) issues.Report {
	return issues.Report{
		Kind:  KindCompiled,
		Title: "Data Irregularities Detected - Compiled Data (" + domain.DateOf(detectedAt).String() + ")",
		Body:  reportBody("Compiled Data Irregularities", found, detectedAt, compiledActions),
	}
}

// RawReport aggregates raw-scrape findings into one issue report.
func RawReport(found []domain.Issue, detectedAt time.Time) issues.Report {
	return issues.Report{
		Kind:  KindRaw,
		Title: "Data Irregularities Detected - Raw Scrapes (" + domain.DateOf(detectedAt).String() + ")",
		Body:  reportBody("Raw Scrape Data Irregularities", found, detectedAt, rawActions),
	}
}

func reportBody(heading string, found []domain.Issue, detectedAt time.Time, actions []string) string {
	var b strings.Builder
	b.WriteString("## " + heading + "\n\n")
	b.WriteString("Detected on: " + detectedAt.Format(time.RFC3339) + "\n\n")
	b.WriteString("### Issues Found\n\n")
	for _, issue := range found {
		b.WriteString("- " + issue.Message + "\n")
	}
	b.WriteString("\n### Suggested Actions\n\n")
	for _, action := range actions {
		b.WriteString("- " + action + "\n")
	}
	return b.String()
}
