// Package influx mirrors merged dataset rows into InfluxDB v2 for dashboards.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

const measurement = "facility_occupancy"

// Mirror writes dataset rows as facility_occupancy points.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
}

// NewMirror creates a Mirror for one organisation and bucket.
func NewMirror(url, token, org, bucket string, timeout time.Duration) *Mirror {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(timeout.Seconds())))
	return &Mirror{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		timeout:  timeout,
	}
}

// WriteRecords writes all records in one blocking request.
func (m *Mirror) WriteRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	points := make([]*write.Point, 0, len(records))
	for i := range records {
		points = append(points, toPoint(&records[i]))
	}
	if err := m.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// Close releases the client's resources.
func (m *Mirror) Close() {
	m.client.Close()
}

func toPoint(r *domain.Record) *write.Point {
	fields := map[string]interface{}{
		"occupancy_percent":  r.OccupancyPercent,
		"is_holiday":         r.IsHoliday,
		"is_school_vacation": r.IsSchoolVacation,
	}
	switch r.IsOpen {
	case domain.OpenOpen:
		fields["is_open"] = true
	case domain.OpenClosed:
		fields["is_open"] = false
	}
	optional := map[string]*float64{
		"temperature_c":       r.TemperatureC,
		"precipitation_mm":    r.PrecipitationMM,
		"weather_code":        r.WeatherCode,
		"cloud_cover_percent": r.CloudCoverPercent,
	}
	for name, v := range optional {
		if v != nil {
			fields[name] = *v
		}
	}
	return write.NewPoint(
		measurement,
		map[string]string{
			"facility_name": r.FacilityName,
			"facility_type": r.FacilityType,
			"data_source":   string(r.DataSource),
		},
		fields,
		r.Timestamp,
	)
}
