// Command genmock writes a deterministic set of input fixtures for local runs:
// raw scrape files at a fixed cadence, a weather file covering the scraped
// days plus the forecast window, holiday files and an alias config.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
)

type facilityDef struct {
	name       string
	typ        string
	collection string
	capacity   int
	peak       float64 // occupancy percent at the busiest hour
}

var facilities = []facilityDef{
	{name: "Nordbad", typ: "pool", collection: "pools", capacity: 311, peak: 78},
	{name: "Westbad", typ: "pool", collection: "pools", capacity: 177, peak: 64},
	{name: "Cosimawellenbad", typ: "pool", collection: "pools", capacity: 420, peak: 55},
	{name: "Cosimawellenbad", typ: "sauna", collection: "saunas", capacity: 90, peak: 82},
	{name: "Nordbad Sauna", typ: "sauna", collection: "saunas", capacity: 60, peak: 71},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/mock", "output directory")
	days := flag.Int("days", 3, "number of scraped days")
	interval := flag.Duration("interval", 15*time.Minute, "scrape cadence")
	forecastHours := flag.Int("forecast-hours", 48, "weather hours after the last scrape")
	timezone := flag.String("timezone", "Europe/Berlin", "scrape timezone")
	flag.Parse()

	if *days <= 0 || *interval <= 0 {
		flag.Usage()
		return fmt.Errorf("-days and -interval must be positive")
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	// Fixed start so repeated runs produce identical files.
	start := time.Date(2026, time.January, 12, 0, 0, 0, 0, loc)
	clock := clockwork.NewFakeClockAt(start)

	rawDir := filepath.Join(*outDir, "raw")
	for _, dir := range []string{rawDir, filepath.Join(*outDir, "weather"), filepath.Join(*outDir, "holidays")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	end := start.AddDate(0, 0, *days)
	var scrapes int
	for now := clock.Now(); now.Before(end); now = clock.Now() {
		if isScrapeHour(now) {
			path := filepath.Join(rawDir, files.SnapshotFileName(now))
			if err := writeJSON(path, scrape(now)); err != nil {
				return fmt.Errorf("write scrape: %w", err)
			}
			scrapes++
		}
		clock.Advance(*interval)
	}
	log.Printf("raw: %d scrape files in %s", scrapes, rawDir)

	weatherPath := filepath.Join(*outDir, "weather", "weather_"+end.Format("20060102_150405")+".json")
	hours := *days*24 + *forecastHours
	if err := writeJSON(weatherPath, weather(start, hours)); err != nil {
		return fmt.Errorf("write weather: %w", err)
	}
	log.Printf("weather: %d hours in %s", hours, weatherPath)

	if err := writeHolidays(filepath.Join(*outDir, "holidays"), start); err != nil {
		return err
	}

	aliases := map[string]string{"pool:Nordbad (Freibad)": "Nordbad"}
	if err := writeJSON(filepath.Join(*outDir, "facility_aliases.json"), aliases); err != nil {
		return fmt.Errorf("write aliases: %w", err)
	}
	log.Printf("wrote fixtures to %s", *outDir)
	return nil
}

// isScrapeHour reports whether the scraper runs at t. Pools publish no
// occupancy between midnight and 06:00.
func isScrapeHour(t time.Time) bool {
	return t.Hour() >= 6
}

func scrape(now time.Time) map[string]any {
	doc := map[string]any{
		"scrape_timestamp": now.Format(time.RFC3339),
		"source":           "mock",
	}
	for _, f := range facilities {
		pct := occupancy(f, now)
		used := int(math.Round(pct / 100 * float64(f.capacity)))
		item := map[string]any{
			"pool_name":         f.name,
			"facility_type":     f.typ,
			"raw_occupancy":     fmt.Sprintf("%d/%d persons", used, f.capacity),
			"timestamp":         now.Format(time.RFC3339),
			"occupancy_percent": pct,
			"is_open":           now.Hour() < 22,
		}
		list, _ := doc[f.collection].([]map[string]any)
		doc[f.collection] = append(list, item)
	}
	return doc
}

// occupancy follows a daily curve peaking mid-afternoon, lower on weekdays.
func occupancy(f facilityDef, t time.Time) float64 {
	if t.Hour() >= 22 {
		return 0
	}
	hour := float64(t.Hour()) + float64(t.Minute())/60
	curve := math.Max(0, math.Sin((hour-6)/16*math.Pi))
	if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
		curve *= 0.7
	}
	return math.Round(f.peak*curve*10) / 10
}

func weather(start time.Time, hours int) map[string]any {
	hourly := make([]map[string]any, 0, hours)
	for i := range hours {
		ts := start.Add(time.Duration(i) * time.Hour)
		hourly = append(hourly, map[string]any{
			"timestamp":           ts.Format(time.RFC3339),
			"temperature_c":       math.Round((2+6*math.Sin(float64(ts.Hour()-8)/24*2*math.Pi))*10) / 10,
			"precipitation_mm":    float64(i%7) / 10,
			"weather_code":        []int{0, 1, 3, 61}[i%4],
			"cloud_cover_percent": (i * 13) % 100,
		})
	}
	return map[string]any{"hourly": hourly}
}

func writeHolidays(dir string, start time.Time) error {
	public := map[string]any{"holidays": []map[string]string{
		{"date": start.AddDate(0, 0, 1).Format(time.DateOnly), "name": "Mock Holiday"},
	}}
	if err := writeJSON(filepath.Join(dir, "public_holidays.json"), public); err != nil {
		return fmt.Errorf("write public holidays: %w", err)
	}
	school := map[string]any{"vacations": []map[string]string{
		{"start": start.AddDate(0, 0, 2).Format(time.DateOnly), "end": start.AddDate(0, 0, 6).Format(time.DateOnly)},
	}}
	if err := writeJSON(filepath.Join(dir, "school_holidays.json"), school); err != nil {
		return fmt.Errorf("write school holidays: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
