package files

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

const weatherPattern = "weather_*.json"

// ErrNoWeather is returned when a step that requires a weather forecast finds
// no weather file. Weather files are produced by the weather fetcher.
var ErrNoWeather = errors.New("no weather data")

// LoadWeather builds a weather index from every weather file in dir. Files are
// applied in name order so later fetches overwrite earlier ones for the same
// hour. Unreadable files are skipped with a warning.
func LoadWeather(dir string, loc *time.Location, logger *slog.Logger) (*domain.WeatherIndex, error) {
	paths, err := globSorted(dir, weatherPattern)
	if err != nil {
		return nil, err
	}
	idx := domain.NewWeatherIndex(loc)
	for _, path := range paths {
		hours, err := readWeather(path, loc)
		if err != nil {
			logger.Warn("skipping invalid weather file", "file", path, "error", err)
			continue
		}
		idx.Add(hours)
	}
	if len(paths) == 0 {
		logger.Warn("no weather files found", "dir", dir)
	}
	return idx, nil
}

// LoadLatestWeather builds an index from the newest weather file in dir only.
func LoadLatestWeather(dir string, loc *time.Location) (*domain.WeatherIndex, string, error) {
	paths, err := globSorted(dir, weatherPattern)
	if err != nil {
		return nil, "", err
	}
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("%w in %s", ErrNoWeather, dir)
	}
	latest := paths[len(paths)-1]
	hours, err := readWeather(latest, loc)
	if err != nil {
		return nil, latest, fmt.Errorf("read weather %s: %w", latest, err)
	}
	idx := domain.NewWeatherIndex(loc)
	idx.Add(hours)
	return idx, latest, nil
}

func readWeather(path string, loc *time.Location) ([]domain.WeatherHour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return domain.ParseWeatherFile(data, loc)
}
