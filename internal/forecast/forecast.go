// Package forecast assembles model features for the coming hours and turns
// model output into forecast rows in the dataset's format.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

var (
	// ErrModelUnavailable is returned when no trained model can be reached.
	// The model is produced by the training job.
	ErrModelUnavailable = errors.New("occupancy model not available")

	// ErrIncompleteWeather is returned when the weather forecast does not cover
	// every forecast hour.
	ErrIncompleteWeather = errors.New("weather forecast incomplete")
)

// Features is one model input row.
type Features struct {
	Facility         string   `json:"facility"`
	FacilityType     string   `json:"facility_type"`
	Hour             int      `json:"hour"`
	DayOfWeek        int      `json:"day_of_week"`
	Month            int      `json:"month"`
	IsWeekend        int      `json:"is_weekend"`
	IsHoliday        int      `json:"is_holiday"`
	IsSchoolVacation int      `json:"is_school_vacation"`
	TemperatureC     *float64 `json:"temperature_c"`
	PrecipitationMM  *float64 `json:"precipitation_mm"`
	WeatherCode      *float64 `json:"weather_code"`
}

// Predictor is the trained occupancy model. It returns one prediction per
// input row, in order.
type Predictor interface {
	Predict(ctx context.Context, rows []Features) ([]float64, error)
}

// Generator produces forecast rows for a fixed number of hours starting at the
// current hour.
type Generator struct {
	predictor Predictor
	loc       *time.Location
	calendar  *domain.HolidayCalendar
	hours     int
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewGenerator creates a Generator covering hours hours.
func NewGenerator(predictor Predictor, loc *time.Location, calendar *domain.HolidayCalendar, hours int, clock clockwork.Clock, logger *slog.Logger) *Generator {
	return &Generator{
		predictor: predictor,
		loc:       loc,
		calendar:  calendar,
		hours:     hours,
		clock:     clock,
		logger:    logger,
	}
}

// Generate predicts occupancy for every facility and forecast hour.
func (g *Generator) Generate(ctx context.Context, facilities []domain.FacilityKey, weather *domain.WeatherIndex) ([]domain.Record, error) {
	start := domain.HourFloor(g.clock.Now(), g.loc)
	end := start.Add(time.Duration(g.hours) * time.Hour)
	hours := weather.Between(start, end)
	if len(hours) < g.hours {
		return nil, fmt.Errorf("%w: only %d hours available, need %d", ErrIncompleteWeather, len(hours), g.hours)
	}
	g.logger.Info("assembling forecast features",
		"start", start, "hours", len(hours), "facilities", len(facilities))

	records := make([]domain.Record, 0, len(hours)*len(facilities))
	rows := make([]Features, 0, cap(records))
	for _, h := range hours {
		base := domain.EnrichCalendar(domain.Record{
			Timestamp:         h.Hour,
			IsOpen:            domain.OpenUnknown,
			TemperatureC:      h.TemperatureC,
			PrecipitationMM:   h.PrecipitationMM,
			WeatherCode:       h.WeatherCode,
			CloudCoverPercent: h.CloudCoverPercent,
			DataSource:        domain.SourceForecast,
		}, g.loc, g.calendar)

		for _, f := range facilities {
			rec := base
			rec.FacilityName = f.Name
			rec.FacilityType = f.Type
			records = append(records, rec)
			rows = append(rows, featuresOf(rec))
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	predictions, err := g.predictor.Predict(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(predictions) != len(rows) {
		return nil, fmt.Errorf("predict: got %d predictions for %d rows", len(predictions), len(rows))
	}
	for i := range records {
		records[i].OccupancyPercent = normalize(predictions[i])
	}

	dataset.Sort(records)
	return records, nil
}

func featuresOf(r domain.Record) Features {
	return Features{
		Facility:         r.FacilityName,
		FacilityType:     r.FacilityType,
		Hour:             r.Hour,
		DayOfWeek:        r.DayOfWeek,
		Month:            r.Month,
		IsWeekend:        flag(r.IsWeekend),
		IsHoliday:        flag(r.IsHoliday),
		IsSchoolVacation: flag(r.IsSchoolVacation),
		TemperatureC:     r.TemperatureC,
		PrecipitationMM:  r.PrecipitationMM,
		WeatherCode:      r.WeatherCode,
	}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// normalize clamps a prediction to [0, 100] and rounds it to one decimal.
func normalize(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*10) / 10
}

// Save writes forecast rows in the dataset column order, replacing path.
func Save(path string, records []domain.Record, loc *time.Location) error {
	return dataset.WriteFileAtomic(path, func(w io.Writer) error {
		return dataset.Encode(w, records, loc)
	})
}
