package pipeline

import (
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// RecordTransformer turns raw observations into canonical dataset rows using
// the alias map, the holiday calendar and the weather index of one run.
type RecordTransformer struct {
	aliases  domain.AliasMap
	loc      *time.Location
	calendar *domain.HolidayCalendar
	weather  *domain.WeatherIndex
}

// NewTransformer creates a RecordTransformer. A nil calendar or weather index
// leaves the corresponding features empty.
func NewTransformer(aliases domain.AliasMap, loc *time.Location, calendar *domain.HolidayCalendar, weather *domain.WeatherIndex) *RecordTransformer {
	return &RecordTransformer{
		aliases:  aliases,
		loc:      loc,
		calendar: calendar,
		weather:  weather,
	}
}

// Transform resolves the canonical name and attaches calendar and weather
// features. The row is tagged as historical.
func (t *RecordTransformer) Transform(obs domain.Observation) domain.Record {
	rec := domain.NewRecord(obs, t.aliases.Resolve(obs.FacilityName, obs.FacilityType))
	rec = domain.EnrichCalendar(rec, t.loc, t.calendar)
	return domain.EnrichWeather(rec, t.weather)
}
