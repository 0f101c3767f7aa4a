package domain

import (
	"time"
)

// DataSource tags where a dataset row came from.
type DataSource string

const (
	SourceHistorical DataSource = "historical"
	SourceForecast   DataSource = "forecast"
)

// Record is a canonical dataset row: an observation under its canonical name
// plus calendar and weather features.
type Record struct {
	Timestamp        time.Time
	FacilityName     string
	FacilityType     string
	OccupancyPercent float64
	IsOpen           OpenState

	Hour             int
	DayOfWeek        int // Monday = 0
	Month            int
	IsWeekend        bool
	IsHoliday        bool
	IsSchoolVacation bool

	TemperatureC      *float64
	PrecipitationMM   *float64
	WeatherCode       *float64
	CloudCoverPercent *float64

	DataSource DataSource
}

// RecordKey is the dataset uniqueness key.
type RecordKey struct {
	UnixNano     int64
	FacilityName string
	FacilityType string
}

// Key returns the (timestamp, facility_name, facility_type) key of the row.
func (r Record) Key() RecordKey {
	return RecordKey{
		UnixNano:     r.Timestamp.UnixNano(),
		FacilityName: r.FacilityName,
		FacilityType: r.FacilityType,
	}
}

// Facility returns the canonical facility key of the row.
func (r Record) Facility() FacilityKey {
	return FacilityKey{Type: r.FacilityType, Name: r.FacilityName}
}

// NewRecord starts a historical record from an observation and its resolved
// canonical name. Features are added by [EnrichCalendar] and [EnrichWeather].
func NewRecord(obs Observation, canonicalName string) Record {
	return Record{
		Timestamp:        obs.Timestamp,
		FacilityName:     canonicalName,
		FacilityType:     obs.FacilityType,
		OccupancyPercent: obs.OccupancyPercent,
		IsOpen:           obs.IsOpen,
		DataSource:       SourceHistorical,
	}
}

// Weekday converts Go's Sunday-based weekday to a Monday = 0 index.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// EnrichCalendar derives time and holiday features from the row's own
// timestamp in loc. The timestamp itself is moved into loc.
func EnrichCalendar(r Record, loc *time.Location, cal *HolidayCalendar) Record {
	local := r.Timestamp.In(loc)
	r.Timestamp = local
	r.Hour = local.Hour()
	r.DayOfWeek = Weekday(local)
	r.Month = int(local.Month())
	r.IsWeekend = r.DayOfWeek >= 5

	day := DateOf(local)
	r.IsHoliday = cal.IsPublicHoliday(day)
	r.IsSchoolVacation = cal.IsSchoolVacation(day)
	return r
}

// EnrichWeather attaches the weather of the row's hour. Rows without a
// matching hour keep nil weather fields.
func EnrichWeather(r Record, weather *WeatherIndex) Record {
	h, ok := weather.Lookup(r.Timestamp)
	if !ok {
		return r
	}
	r.TemperatureC = h.TemperatureC
	r.PrecipitationMM = h.PrecipitationMM
	r.WeatherCode = h.WeatherCode
	r.CloudCoverPercent = h.CloudCoverPercent
	return r
}
