// Package dataset persists and reconciles the compiled occupancy dataset.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// TimestampLayout is the persisted timestamp format: ISO-8601 with a colon
// separated offset. Fractional seconds are written only when present so that
// rows round-trip without changing their key.
const TimestampLayout = "2006-01-02T15:04:05.999999999-07:00"

// Columns is the fixed persisted column order.
var Columns = []string{
	"timestamp", "facility_name", "facility_type", "occupancy_percent",
	"is_open", "hour", "day_of_week", "month", "is_weekend",
	"is_holiday", "is_school_vacation",
	"temperature_c", "precipitation_mm", "weather_code", "cloud_cover_percent",
	"data_source",
}

// naiveTimestampLayout covers legacy rows written without an offset; they are
// read as wall time in the dataset location.
const naiveTimestampLayout = "2006-01-02 15:04:05"

// legacyColumns maps old header names onto current ones.
var legacyColumns = map[string]string{"pool_name": "facility_name"}

// Store reads and writes the dataset CSV at a fixed path.
type Store struct {
	path string
	loc  *time.Location
}

// NewStore creates a Store for path. Timestamps are written in loc.
func NewStore(path string, loc *time.Location) *Store {
	return &Store{path: path, loc: loc}
}

// Path returns the dataset file path.
func (s *Store) Path() string { return s.path }

// Load reads the persisted dataset. It reports false when no dataset exists yet.
func (s *Store) Load() ([]domain.Record, bool, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := Decode(f, s.loc)
	if err != nil {
		return nil, false, fmt.Errorf("read dataset %s: %w", s.path, err)
	}
	return records, true, nil
}

// Save replaces the persisted dataset with records. The file is written to a
// temporary sibling and renamed, so readers never see a partial dataset.
func (s *Store) Save(records []domain.Record) error {
	return WriteFileAtomic(s.path, func(w io.Writer) error {
		return Encode(w, records, s.loc)
	})
}

// Encode writes records as CSV with a header row.
func Encode(w io.Writer, records []domain.Record, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range records {
		if err := cw.Write(encodeRow(&records[i], loc)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeRow(r *domain.Record, loc *time.Location) []string {
	return []string{
		r.Timestamp.In(loc).Format(TimestampLayout),
		r.FacilityName,
		r.FacilityType,
		formatFloat(r.OccupancyPercent),
		formatOpen(r.IsOpen),
		strconv.Itoa(r.Hour),
		strconv.Itoa(r.DayOfWeek),
		strconv.Itoa(r.Month),
		formatBool(r.IsWeekend),
		formatBool(r.IsHoliday),
		formatBool(r.IsSchoolVacation),
		formatOptional(r.TemperatureC),
		formatOptional(r.PrecipitationMM),
		formatOptional(r.WeatherCode),
		formatOptional(r.CloudCoverPercent),
		string(r.DataSource),
	}
}

// Decode reads a dataset CSV. Columns are matched by header name, so files
// missing trailing feature columns still load.
func Decode(r io.Reader, loc *time.Location) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if current, ok := legacyColumns[h]; ok {
			if _, exists := idx[current]; !exists {
				idx[current] = i
			}
			continue
		}
		idx[h] = i
	}
	for _, required := range []string{"timestamp", "facility_name", "facility_type", "occupancy_percent"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var records []domain.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := decodeRow(row, idx, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRow(row []string, idx map[string]int, loc *time.Location) (domain.Record, error) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	ts, err := parseTimestamp(field("timestamp"), loc)
	if err != nil {
		return domain.Record{}, err
	}
	occupancy, err := strconv.ParseFloat(field("occupancy_percent"), 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("occupancy_percent: %w", err)
	}

	rec := domain.Record{
		Timestamp:        ts,
		FacilityName:     field("facility_name"),
		FacilityType:     field("facility_type"),
		OccupancyPercent: occupancy,
		IsOpen:           parseOpen(field("is_open")),
		DataSource:       domain.DataSource(field("data_source")),
	}
	if rec.DataSource == "" {
		rec.DataSource = domain.SourceHistorical
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"hour", &rec.Hour},
		{"day_of_week", &rec.DayOfWeek},
		{"month", &rec.Month},
	}
	for _, f := range ints {
		v, err := parseInt(field(f.name))
		if err != nil {
			return domain.Record{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	rec.IsWeekend = parseBool(field("is_weekend"))
	rec.IsHoliday = parseBool(field("is_holiday"))
	rec.IsSchoolVacation = parseBool(field("is_school_vacation"))

	optionals := []struct {
		name string
		dst  **float64
	}{
		{"temperature_c", &rec.TemperatureC},
		{"precipitation_mm", &rec.PrecipitationMM},
		{"weather_code", &rec.WeatherCode},
		{"cloud_cover_percent", &rec.CloudCoverPercent},
	}
	for _, f := range optionals {
		v, err := parseOptional(field(f.name))
		if err != nil {
			return domain.Record{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return rec, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.In(loc), nil
	}
	if ts, err := time.ParseInLocation(naiveTimestampLayout, s, loc); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func formatOpen(v domain.OpenState) string {
	switch v {
	case domain.OpenOpen:
		return "1"
	case domain.OpenClosed:
		return "0"
	default:
		return ""
	}
}

func parseOpen(s string) domain.OpenState {
	switch s {
	case "1", "1.0", "true", "True":
		return domain.OpenOpen
	case "0", "0.0", "false", "False":
		return domain.OpenClosed
	default:
		return domain.OpenUnknown
	}
}

func parseBool(s string) bool {
	switch s {
	case "1", "1.0", "true", "True":
		return true
	default:
		return false
	}
}

// parseInt accepts integers written as floats ("12.0"), as older exports did.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteFileAtomic writes path through a temporary file in the same directory,
// creating the directory if needed.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
