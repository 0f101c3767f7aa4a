// Package config loads the pipeline settings.
//
// Settings are layered, lowest precedence first:
//  1. built-in defaults
//  2. a YAML file, when OCCUPANCY_CONFIG names one
//  3. environment variables prefixed OCCUPANCY_ (OCCUPANCY_RAW_DIR -> raw_dir)
//
// A .env file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "OCCUPANCY_"

// Issue tracker names.
const (
	TrackerGitHub = "github"
	TrackerKafka  = "kafka"
	TrackerNone   = "none"
)

// Config holds all pipeline settings.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Timezone  string `koanf:"timezone"`

	// Input and output locations.
	RawDir            string `koanf:"raw_dir"`
	WeatherDir        string `koanf:"weather_dir"`
	HolidayDir        string `koanf:"holiday_dir"`
	AliasesPath       string `koanf:"aliases_path"`
	DatasetPath       string `koanf:"dataset_path"`
	FacilityTypesPath string `koanf:"facility_types_path"`
	ForecastPath      string `koanf:"forecast_path"`

	// Compiled dataset audit.
	HistoryWindow      time.Duration `koanf:"history_window"`
	RecentWindow       time.Duration `koanf:"recent_window"`
	ZeroWindow         time.Duration `koanf:"zero_window"`
	ZeroSpanThreshold  time.Duration `koanf:"zero_span_threshold"`
	DaytimeStartHour   int           `koanf:"daytime_start_hour"`
	DaytimeEndHour     int           `koanf:"daytime_end_hour"`
	MaxInvalidReported int           `koanf:"max_invalid_reported"`

	// Raw scrape audit.
	HistoryDays           int           `koanf:"history_days"`
	MinScrapesForMissing  int           `koanf:"min_scrapes_for_missing"`
	MinCoverageForMissing time.Duration `koanf:"min_coverage_for_missing"`
	GapThreshold          time.Duration `koanf:"gap_threshold"`

	// Issue reporting.
	IssueTracker    string        `koanf:"issue_tracker"`
	IssueLabel      string        `koanf:"issue_label"`
	IssueTimeout    time.Duration `koanf:"issue_timeout"`
	GitHubRepo      string        `koanf:"github_repo"`
	KafkaBrokersRaw string        `koanf:"kafka_brokers"`
	KafkaIssueTopic string        `koanf:"kafka_issue_topic"`

	// Optional InfluxDB mirror of merged rows. Disabled when InfluxURL is empty.
	InfluxURL     string        `koanf:"influx_url"`
	InfluxToken   string        `koanf:"influx_token"`
	InfluxOrg     string        `koanf:"influx_org"`
	InfluxBucket  string        `koanf:"influx_bucket"`
	InfluxTimeout time.Duration `koanf:"influx_timeout"`

	// Optional Pushgateway for run metrics. Disabled when PushgatewayURL is empty.
	PushgatewayURL string        `koanf:"pushgateway_url"`
	PushJob        string        `koanf:"push_job"`
	PushTimeout    time.Duration `koanf:"push_timeout"`

	// Forecast.
	ForecastHours  int           `koanf:"forecast_hours"`
	ScoringURL     string        `koanf:"scoring_url"`
	ScoringTimeout time.Duration `koanf:"scoring_timeout"`

	KafkaBrokers []string       `koanf:"-"`
	Location     *time.Location `koanf:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Timezone:  "Europe/Berlin",

		RawDir:            "data/raw",
		WeatherDir:        "data/weather",
		HolidayDir:        "data/holidays",
		AliasesPath:       "config/facility_aliases.json",
		DatasetPath:       "datasets/occupancy_historical.csv",
		FacilityTypesPath: "config/facility_types.json",
		ForecastPath:      "datasets/occupancy_forecast.csv",

		HistoryWindow:      30 * 24 * time.Hour,
		RecentWindow:       24 * time.Hour,
		ZeroWindow:         48 * time.Hour,
		ZeroSpanThreshold:  8 * time.Hour,
		DaytimeStartHour:   6,
		DaytimeEndHour:     22,
		MaxInvalidReported: 10,

		HistoryDays:           30,
		MinScrapesForMissing:  8,
		MinCoverageForMissing: 2 * time.Hour,
		GapThreshold:          2 * time.Hour,

		IssueTracker:    TrackerGitHub,
		IssueLabel:      "data-irregularity",
		IssueTimeout:    30 * time.Second,
		KafkaBrokersRaw: "localhost:9092",
		KafkaIssueTopic: "data-irregularities",

		InfluxTimeout: 10 * time.Second,

		PushJob:     "occupancy_etl",
		PushTimeout: 5 * time.Second,

		ForecastHours:  48,
		ScoringTimeout: 10 * time.Second,
	}
}

// Load reads configuration from defaults, the optional YAML file and the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := sharedcfg.EnvOrDefault(envPrefix+"CONFIG", ""); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Keys stay flat: OCCUPANCY_GAP_THRESHOLD -> gap_threshold.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize derives the computed fields and validates the result.
func (c *Config) finalize() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid OCCUPANCY_TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc
	c.KafkaBrokers = sharedcfg.ParseBrokers(c.KafkaBrokersRaw)

	switch {
	case c.DatasetPath == "":
		return errors.New("OCCUPANCY_DATASET_PATH is required")
	case c.RawDir == "":
		return errors.New("OCCUPANCY_RAW_DIR is required")
	case c.DaytimeStartHour < 0 || c.DaytimeEndHour > 24 || c.DaytimeStartHour >= c.DaytimeEndHour:
		return fmt.Errorf("invalid daytime window [%d, %d)", c.DaytimeStartHour, c.DaytimeEndHour)
	case c.HistoryDays <= 0:
		return errors.New("OCCUPANCY_HISTORY_DAYS must be positive")
	case c.MinScrapesForMissing < 0:
		return errors.New("OCCUPANCY_MIN_SCRAPES_FOR_MISSING must not be negative")
	case c.GapThreshold <= 0:
		return errors.New("OCCUPANCY_GAP_THRESHOLD must be positive")
	case c.ZeroSpanThreshold <= 0:
		return errors.New("OCCUPANCY_ZERO_SPAN_THRESHOLD must be positive")
	case c.MaxInvalidReported < 0:
		return errors.New("OCCUPANCY_MAX_INVALID_REPORTED must not be negative")
	case c.ForecastHours <= 0:
		return errors.New("OCCUPANCY_FORECAST_HOURS must be positive")
	}

	switch c.IssueTracker {
	case TrackerGitHub, TrackerNone:
	case TrackerKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("OCCUPANCY_KAFKA_BROKERS is required for the kafka issue tracker")
		}
		if c.KafkaIssueTopic == "" {
			return errors.New("OCCUPANCY_KAFKA_ISSUE_TOPIC is required for the kafka issue tracker")
		}
	default:
		return fmt.Errorf("unknown OCCUPANCY_ISSUE_TRACKER %q", c.IssueTracker)
	}

	if c.InfluxEnabled() && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return errors.New("OCCUPANCY_INFLUX_URL is set but OCCUPANCY_INFLUX_ORG or OCCUPANCY_INFLUX_BUCKET is not")
	}
	return nil
}

// InfluxEnabled reports whether merged rows are mirrored to InfluxDB.
func (c *Config) InfluxEnabled() bool { return c.InfluxURL != "" }

// PushEnabled reports whether run metrics are pushed to a Pushgateway.
func (c *Config) PushEnabled() bool { return c.PushgatewayURL != "" }
