// Package scoring calls the HTTP model-serving endpoint that hosts the trained
// occupancy model.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/occupancy-etl/internal/forecast"
	"github.com/couchcryptid/occupancy-etl/internal/observability"
)

// Client implements forecast.Predictor against a scoring service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a scoring client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		metrics: metrics,
	}
}

// Predict sends all rows in one request and returns one prediction per row.
func (c *Client) Predict(ctx context.Context, rows []forecast.Features) ([]float64, error) {
	start := time.Now()
	defer func() {
		c.metrics.RunDuration.WithLabelValues("predict").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(request{Instances: rows})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forecast.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusServiceUnavailable:
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", forecast.ErrModelUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scoring API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("scored forecast rows", "rows", len(rows), "model", out.Model)
	return out.Predictions, nil
}

// Scoring API request and response types.

type request struct {
	Instances []forecast.Features `json:"instances"`
}

type response struct {
	Predictions []float64 `json:"predictions"`
	Model       string    `json:"model"`
}
