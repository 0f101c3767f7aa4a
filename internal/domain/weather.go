package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// naiveHourLayouts are accepted for weather timestamps without an offset.
// They are interpreted in the index location.
var naiveHourLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// WeatherHour holds the weather features for one hour. Nil fields were not
// reported by the provider.
type WeatherHour struct {
	Hour              time.Time
	TemperatureC      *float64
	PrecipitationMM   *float64
	WeatherCode       *float64
	CloudCoverPercent *float64
}

type weatherFile struct {
	Hourly []struct {
		Timestamp         string   `json:"timestamp"`
		TemperatureC      *float64 `json:"temperature_c"`
		PrecipitationMM   *float64 `json:"precipitation_mm"`
		WeatherCode       *float64 `json:"weather_code"`
		CloudCoverPercent *float64 `json:"cloud_cover_percent"`
	} `json:"hourly"`
}

// ParseWeatherFile decodes one weather snapshot file. Hour timestamps are
// converted to loc; timestamps without an offset are read as loc wall time.
func ParseWeatherFile(data []byte, loc *time.Location) ([]WeatherHour, error) {
	var f weatherFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse weather file: %w", err)
	}
	out := make([]WeatherHour, 0, len(f.Hourly))
	for i, h := range f.Hourly {
		ts, err := parseWeatherTimestamp(h.Timestamp, loc)
		if err != nil {
			return nil, fmt.Errorf("parse weather file: hour %d: %w", i, err)
		}
		out = append(out, WeatherHour{
			Hour:              ts,
			TemperatureC:      h.TemperatureC,
			PrecipitationMM:   h.PrecipitationMM,
			WeatherCode:       h.WeatherCode,
			CloudCoverPercent: h.CloudCoverPercent,
		})
	}
	return out, nil
}

func parseWeatherTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.In(loc), nil
	}
	for _, layout := range naiveHourLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// HourFloor truncates t to the start of its hour in loc. It works on wall
// clock fields, so zones with non-whole-hour offsets floor correctly.
func HourFloor(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return t.Add(-(time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())))
}

// WeatherIndex is an hour-bucketed weather table. When several files cover
// the same hour, the one added last wins.
type WeatherIndex struct {
	loc   *time.Location
	hours map[int64]WeatherHour
}

// NewWeatherIndex creates an empty index bucketing hours in loc.
func NewWeatherIndex(loc *time.Location) *WeatherIndex {
	return &WeatherIndex{loc: loc, hours: make(map[int64]WeatherHour)}
}

// Add inserts hours in order, replacing any existing row for the same hour.
func (w *WeatherIndex) Add(hours []WeatherHour) {
	for _, h := range hours {
		h.Hour = HourFloor(h.Hour, w.loc)
		w.hours[h.Hour.Unix()] = h
	}
}

// Lookup returns the weather row for the hour containing t.
func (w *WeatherIndex) Lookup(t time.Time) (WeatherHour, bool) {
	if w == nil {
		return WeatherHour{}, false
	}
	h, ok := w.hours[HourFloor(t, w.loc).Unix()]
	return h, ok
}

// Len returns the number of distinct hours in the index.
func (w *WeatherIndex) Len() int {
	if w == nil {
		return 0
	}
	return len(w.hours)
}

// Between returns the rows with start <= hour < end, ordered by hour.
func (w *WeatherIndex) Between(start, end time.Time) []WeatherHour {
	if w == nil {
		return nil
	}
	var out []WeatherHour
	for t := HourFloor(start, w.loc); t.Before(end); t = t.Add(time.Hour) {
		if t.Before(start) {
			continue
		}
		if h, ok := w.hours[t.Unix()]; ok {
			out = append(out, h)
		}
	}
	return out
}
