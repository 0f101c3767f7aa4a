// Command forecast predicts hourly occupancy for every known facility over
// the coming weather forecast window and writes it as a forecast CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
	"github.com/couchcryptid/occupancy-etl/internal/adapter/scoring"
	"github.com/couchcryptid/occupancy-etl/internal/config"
	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/forecast"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger, metrics)
	metrics.PushIfEnabled(cfg, logger)
	if err != nil {
		logger.Error("forecast failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	if cfg.ScoringURL == "" {
		return fmt.Errorf("%w: set OCCUPANCY_SCORING_URL to a trained model endpoint", forecast.ErrModelUnavailable)
	}

	types, err := dataset.LoadFacilityTypes(cfg.FacilityTypesPath)
	if errors.Is(err, dataset.ErrFacilityTypesNotFound) {
		return fmt.Errorf("%w: run transform first", err)
	}
	if err != nil {
		return err
	}

	weather, source, err := files.LoadLatestWeather(cfg.WeatherDir, cfg.Location)
	if errors.Is(err, files.ErrNoWeather) {
		return fmt.Errorf("%w: run the weather fetcher first", err)
	}
	if err != nil {
		return err
	}
	logger.Info("loaded weather forecast", "file", source, "hours", weather.Len())

	calendar, err := files.LoadCalendar(cfg.HolidayDir, logger)
	if err != nil {
		return err
	}

	client := scoring.NewClient(cfg.ScoringURL, cfg.ScoringTimeout, logger, metrics)
	gen := forecast.NewGenerator(client, cfg.Location, calendar, cfg.ForecastHours, clockwork.NewRealClock(), logger)

	records, err := gen.Generate(ctx, types.Facilities(), weather)
	if err != nil {
		return err
	}
	if err := forecast.Save(cfg.ForecastPath, records, cfg.Location); err != nil {
		return fmt.Errorf("save forecast: %w", err)
	}
	metrics.ForecastRows.Add(float64(len(records)))
	logger.Info("forecast written", "path", cfg.ForecastPath, "rows", len(records), "facilities", len(types))
	return nil
}
