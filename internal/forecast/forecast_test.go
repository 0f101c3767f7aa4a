package forecast

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

type fakePredictor struct {
	rows   []Features
	values func(i int, f Features) float64
	err    error
}

func (p *fakePredictor) Predict(_ context.Context, rows []Features) ([]float64, error) {
	p.rows = rows
	if p.err != nil {
		return nil, p.err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = p.values(i, r)
	}
	return out, nil
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func ptr(v float64) *float64 { return &v }

func weatherFrom(loc *time.Location, start time.Time, hours int) *domain.WeatherIndex {
	idx := domain.NewWeatherIndex(loc)
	var rows []domain.WeatherHour
	for i := range hours {
		rows = append(rows, domain.WeatherHour{
			Hour:              start.Add(time.Duration(i) * time.Hour),
			TemperatureC:      ptr(float64(i)),
			PrecipitationMM:   ptr(0),
			WeatherCode:       ptr(3),
			CloudCoverPercent: ptr(50),
		})
	}
	idx.Add(rows)
	return idx
}

var facilities = []domain.FacilityKey{
	{Type: "pool", Name: "Nordbad"},
	{Type: "sauna", Name: "Nordbad"},
}

func TestGenerator_Generate(t *testing.T) {
	loc := berlin(t)
	// 2026-01-06 is a public holiday (Tuesday); the run starts mid-hour.
	now := time.Date(2026, 1, 6, 9, 40, 0, 0, loc)
	cal := domain.NewHolidayCalendar(map[domain.Date]string{{Year: 2026, Month: time.January, Day: 6}: "Heilige Drei Könige"}, nil)
	weather := weatherFrom(loc, time.Date(2026, 1, 6, 8, 0, 0, 0, loc), 60)

	pred := &fakePredictor{values: func(i int, _ Features) float64 {
		switch i {
		case 0:
			return -3
		case 1:
			return 104
		default:
			return 42.26
		}
	}}
	g := NewGenerator(pred, loc, cal, 48, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))

	recs, err := g.Generate(context.Background(), facilities, weather)
	require.NoError(t, err)
	require.Len(t, recs, 96)
	require.Len(t, pred.rows, 96)

	first := recs[0]
	assert.True(t, first.Timestamp.Equal(time.Date(2026, 1, 6, 9, 0, 0, 0, loc)), "starts at the current hour")
	assert.Equal(t, domain.SourceForecast, first.DataSource)
	assert.Equal(t, domain.OpenUnknown, first.IsOpen)
	assert.True(t, first.IsHoliday)
	assert.InDelta(t, 0, recs[0].OccupancyPercent, 1e-9, "clamped low")
	assert.InDelta(t, 100, recs[1].OccupancyPercent, 1e-9, "clamped high")
	assert.InDelta(t, 42.3, recs[2].OccupancyPercent, 1e-9, "rounded to one decimal")
	assert.True(t, recs[95].Timestamp.Equal(time.Date(2026, 1, 8, 8, 0, 0, 0, loc)))

	assert.Equal(t, Features{
		Facility:        "Nordbad",
		FacilityType:    "pool",
		Hour:            9,
		DayOfWeek:       1,
		Month:           1,
		IsHoliday:       1,
		TemperatureC:    ptr(1),
		PrecipitationMM: ptr(0),
		WeatherCode:     ptr(3),
	}, pred.rows[0])
}

func TestGenerator_IncompleteWeather(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, loc)
	weather := weatherFrom(loc, now, 47)
	pred := &fakePredictor{}
	g := NewGenerator(pred, loc, nil, 48, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))

	_, err := g.Generate(context.Background(), facilities, weather)
	require.ErrorIs(t, err, ErrIncompleteWeather)
	assert.Contains(t, err.Error(), "only 47 hours available, need 48")
	assert.Nil(t, pred.rows, "model is not called")
}

func TestGenerator_PredictorErrors(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, loc)
	weather := weatherFrom(loc, now, 2)

	t.Run("model failure", func(t *testing.T) {
		g := NewGenerator(&fakePredictor{err: ErrModelUnavailable}, loc, nil, 2, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))
		_, err := g.Generate(context.Background(), facilities, weather)
		require.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("short prediction list", func(t *testing.T) {
		short := predictorFunc(func(_ context.Context, rows []Features) ([]float64, error) {
			return make([]float64, len(rows)-1), nil
		})
		g := NewGenerator(short, loc, nil, 2, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))
		_, err := g.Generate(context.Background(), facilities, weather)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 predictions for 4 rows")
	})
}

type predictorFunc func(ctx context.Context, rows []Features) ([]float64, error)

func (f predictorFunc) Predict(ctx context.Context, rows []Features) ([]float64, error) {
	return f(ctx, rows)
}

func TestSave(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, loc)
	g := NewGenerator(&fakePredictor{values: func(int, Features) float64 { return 12.5 }},
		loc, nil, 1, clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))
	recs, err := g.Generate(context.Background(), facilities[:1], weatherFrom(loc, now, 1))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "occupancy_forecast.csv")
	require.NoError(t, Save(path, recs, loc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-01-06T09:00:00+01:00,Nordbad,pool,12.5,,9,1,1,0,0,0,0,0,3,50,forecast", lines[1])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.1, 0},
		{0.04, 0},
		{55.56, 55.6},
		{99.96, 100},
		{250, 100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, normalize(tt.in), 1e-9, "normalize(%v)", tt.in)
	}
}
