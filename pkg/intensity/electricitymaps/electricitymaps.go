// Package electricitymaps adapts the Electricity Maps commercial API to
// the intensity.Source contract.
package electricitymaps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/retry"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.electricitymaps.com/v3"

	defaultPriority = 2
	requestTimeout  = 10 * time.Second

	// Confidence assigned to measured vs estimated readings. The API
	// flags estimates explicitly; forecasts are always model output.
	measuredConfidence = 0.9
	estimatedConfidence = 0.6
	forecastConfidence  = 0.8
)

// Client queries Electricity Maps for current and forecast intensity.
type Client struct {
	apiKey   string
	baseURL  string
	zones    map[string]string // region code -> Electricity Maps zone
	priority int
	client   *http.Client
	retry    retry.Config
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithPriority overrides the source priority rank.
func WithPriority(p int) Option {
	return func(c *Client) { c.priority = p }
}

// WithRetry overrides the transport retry configuration.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a Client covering the regions in zones.
func New(apiKey string, zones map[string]string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		zones:    zones,
		priority: defaultPriority,
		client:   &http.Client{Timeout: requestTimeout},
		retry:    retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return "electricitymaps"
}

// Covers reports whether a zone mapping exists for the region.
func (c *Client) Covers(region string) bool {
	_, ok := c.zones[region]
	return ok
}

// Priority returns the configured rank for any covered region.
func (c *Client) Priority(region string) int {
	return c.priority
}

// Current returns the latest carbon intensity for the region.
func (c *Client) Current(ctx context.Context, region string) (intensity.Reading, error) {
	zone, ok := c.zones[region]
	if !ok {
		return intensity.Reading{}, fmt.Errorf("electricitymaps: region %s not covered", region)
	}
	if c.apiKey == "" {
		return intensity.Reading{}, fmt.Errorf("electricitymaps: missing api key")
	}

	var body struct {
		Zone            string  `json:"zone"`
		CarbonIntensity float64 `json:"carbonIntensity"`
		Datetime        string  `json:"datetime"`
		IsEstimated     bool    `json:"isEstimated"`
	}
	if err := c.getJSON(ctx, "/carbon-intensity/latest", zone, &body); err != nil {
		return intensity.Reading{}, err
	}

	observedAt, err := time.Parse(time.RFC3339, body.Datetime)
	if err != nil {
		return intensity.Reading{}, fmt.Errorf("electricitymaps: parse datetime %q: %w", body.Datetime, err)
	}

	confidence := measuredConfidence
	if body.IsEstimated {
		confidence = estimatedConfidence
	}

	reading := intensity.Reading{
		Region:     region,
		Value:      body.CarbonIntensity,
		Confidence: confidence,
		Source:     c.Name(),
		ObservedAt: observedAt.UTC(),
		Realtime:   true,
	}
	if err := reading.Validate(); err != nil {
		return intensity.Reading{}, fmt.Errorf("electricitymaps: %w", err)
	}
	return reading, nil
}

// Forecast returns predicted intensity up to horizonHours ahead.
func (c *Client) Forecast(ctx context.Context, region string, horizonHours int) ([]intensity.ForecastPoint, error) {
	zone, ok := c.zones[region]
	if !ok {
		return nil, fmt.Errorf("electricitymaps: region %s not covered", region)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("electricitymaps: missing api key")
	}
	if horizonHours <= 0 {
		return nil, fmt.Errorf("electricitymaps: horizon must be > 0")
	}

	var body struct {
		Forecast []struct {
			CarbonIntensity float64 `json:"carbonIntensity"`
			Datetime        string  `json:"datetime"`
		} `json:"forecast"`
	}
	if err := c.getJSON(ctx, "/carbon-intensity/forecast", zone, &body); err != nil {
		return nil, err
	}

	limit := time.Now().UTC().Add(time.Duration(horizonHours) * time.Hour)
	points := make([]intensity.ForecastPoint, 0, len(body.Forecast))
	for _, item := range body.Forecast {
		ts, err := time.Parse(time.RFC3339, item.Datetime)
		if err != nil {
			return nil, fmt.Errorf("electricitymaps: parse forecast datetime %q: %w", item.Datetime, err)
		}
		if ts.UTC().After(limit) {
			continue
		}
		points = append(points, intensity.ForecastPoint{
			Region:     region,
			Timestamp:  ts.UTC(),
			Value:      item.CarbonIntensity,
			Confidence: forecastConfidence,
		})
	}

	return intensity.NormalizeForecast(points), nil
}

// getJSON performs an authenticated GET with transport-level retries.
func (c *Client) getJSON(ctx context.Context, path, zone string, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("electricitymaps: build url: %w", err)
	}
	query := endpoint.Query()
	query.Set("zone", zone)
	endpoint.RawQuery = query.Encode()

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("electricitymaps: create request: %w", err)
		}
		req.Header.Set("auth-token", c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("electricitymaps: call api: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("electricitymaps: unexpected status: %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("electricitymaps: decode response: %w", err)
		}
		return nil
	})
}
