// Command transform merges new raw snapshot files into the historical
// occupancy dataset and rewrites the facility type lookup.
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

	"github.com/couchcryptid/occupancy-etl/internal/adapter/files"
	"github.com/couchcryptid/occupancy-etl/internal/adapter/influx"
	"github.com/couchcryptid/occupancy-etl/internal/config"
	"github.com/couchcryptid/occupancy-etl/internal/dataset"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
	"github.com/couchcryptid/occupancy-etl/internal/pipeline"
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
		logger.Error("transform failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	aliases, err := files.LoadAliases(cfg.AliasesPath)
	if errors.Is(err, files.ErrAliasesNotFound) {
		return fmt.Errorf("%w: create it or set OCCUPANCY_ALIASES_PATH", err)
	}
	if err != nil {
		return err
	}
	logger.Info("loaded facility aliases", "aliases", aliases.Len())

	calendar, err := files.LoadCalendar(cfg.HolidayDir, logger)
	if err != nil {
		return err
	}
	weather, err := files.LoadWeather(cfg.WeatherDir, cfg.Location, logger)
	if err != nil {
		return err
	}
	logger.Info("loaded weather", "hours", weather.Len())

	var opts []pipeline.Option
	if cfg.InfluxEnabled() {
		mirror := influx.NewMirror(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxTimeout)
		defer mirror.Close()
		opts = append(opts, pipeline.WithMirror(mirror))
		logger.Info("influxdb mirror enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}

	merger := pipeline.New(
		files.NewSnapshots(cfg.RawDir, logger),
		pipeline.NewTransformer(aliases, cfg.Location, calendar, weather),
		dataset.NewStore(cfg.DatasetPath, cfg.Location),
		cfg.FacilityTypesPath,
		logger,
		metrics,
		opts...,
	)

	res, err := merger.Run(ctx)
	if err != nil {
		return err
	}
	if res.Written {
		logger.Info("transform complete", "dataset", cfg.DatasetPath, "rows", res.TotalRows, "new_rows", res.NewRows)
	}
	return nil
}
