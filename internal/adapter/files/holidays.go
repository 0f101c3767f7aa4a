package files

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

const (
	publicHolidaysFile = "public_holidays.json"
	schoolHolidaysFile = "school_holidays.json"
)

// LoadCalendar reads public_holidays.json and school_holidays.json from dir.
// A missing file leaves that half of the calendar empty and logs a warning.
func LoadCalendar(dir string, logger *slog.Logger) (*domain.HolidayCalendar, error) {
	var holidays map[domain.Date]string
	data, err := readOptional(filepath.Join(dir, publicHolidaysFile), logger)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if holidays, err = domain.ParsePublicHolidays(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", publicHolidaysFile, err)
		}
	}

	var vacations []domain.DateRange
	data, err = readOptional(filepath.Join(dir, schoolHolidaysFile), logger)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if vacations, err = domain.ParseSchoolVacations(data); err != nil {
			return nil, fmt.Errorf("load %s: %w", schoolHolidaysFile, err)
		}
	}

	cal := domain.NewHolidayCalendar(holidays, vacations)
	logger.Info("loaded holiday calendar",
		"public_holidays", cal.HolidayCount(),
		"school_vacations", cal.VacationCount(),
	)
	return cal, nil
}

func readOptional(path string, logger *slog.Logger) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("holiday file not found", "file", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
