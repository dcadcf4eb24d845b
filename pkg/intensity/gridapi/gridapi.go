// Package gridapi adapts a national grid operator's intensity API to the
// intensity.Source contract. The wire format follows the GB National Grid
// ESO carbon-intensity API: half-hourly settlement periods with a measured
// actual where available and a model forecast otherwise.
//
// A grid operator only speaks for its own territory, so the adapter is
// priority 1 for its configured regions and covers nothing else.
package gridapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/retry"
)

const (
	// DefaultBaseURL is the GB grid operator endpoint.
	DefaultBaseURL = "https://api.carbonintensity.org.uk"

	defaultPriority = 1
	requestTimeout  = 10 * time.Second

	actualConfidence   = 0.95
	forecastConfidence = 0.75

	timeLayout = "2006-01-02T15:04Z"
)

// Client queries a national grid intensity API.
type Client struct {
	baseURL  string
	regions  map[string]bool
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

// WithPriority overrides the source priority rank.
func WithPriority(p int) Option {
	return func(c *Client) { c.priority = p }
}

// WithRetry overrides the transport retry configuration.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a Client covering the given region codes.
func New(regions []string, opts ...Option) *Client {
	covered := make(map[string]bool, len(regions))
	for _, r := range regions {
		covered[r] = true
	}
	c := &Client{
		baseURL:  DefaultBaseURL,
		regions:  covered,
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
	return "gridapi"
}

// Covers reports whether the region is in the grid's territory.
func (c *Client) Covers(region string) bool {
	return c.regions[region]
}

// Priority returns the configured rank for any covered region.
func (c *Client) Priority(region string) int {
	return c.priority
}

// period is one settlement period in the API response.
type period struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Intensity struct {
		Forecast *float64 `json:"forecast"`
		Actual   *float64 `json:"actual"`
		Index    string   `json:"index"`
	} `json:"intensity"`
}

// Current returns the latest settlement period's intensity.
func (c *Client) Current(ctx context.Context, region string) (intensity.Reading, error) {
	if !c.regions[region] {
		return intensity.Reading{}, fmt.Errorf("gridapi: region %s not covered", region)
	}

	var body struct {
		Data []period `json:"data"`
	}
	if err := c.getJSON(ctx, "/intensity", &body); err != nil {
		return intensity.Reading{}, err
	}
	if len(body.Data) == 0 {
		return intensity.Reading{}, fmt.Errorf("gridapi: empty intensity response")
	}

	p := body.Data[0]
	observedAt, err := time.Parse(timeLayout, p.From)
	if err != nil {
		return intensity.Reading{}, fmt.Errorf("gridapi: parse period start %q: %w", p.From, err)
	}

	value := p.Intensity.Actual
	confidence := actualConfidence
	if value == nil {
		value = p.Intensity.Forecast
		confidence = forecastConfidence
	}
	if value == nil {
		return intensity.Reading{}, fmt.Errorf("gridapi: period has neither actual nor forecast value")
	}

	reading := intensity.Reading{
		Region:     region,
		Value:      *value,
		Confidence: confidence,
		Source:     c.Name(),
		ObservedAt: observedAt.UTC(),
		Realtime:   true,
	}
	if err := reading.Validate(); err != nil {
		return intensity.Reading{}, fmt.Errorf("gridapi: %w", err)
	}
	return reading, nil
}

// Forecast returns the forward forecast clipped to horizonHours.
func (c *Client) Forecast(ctx context.Context, region string, horizonHours int) ([]intensity.ForecastPoint, error) {
	if !c.regions[region] {
		return nil, fmt.Errorf("gridapi: region %s not covered", region)
	}
	if horizonHours <= 0 {
		return nil, fmt.Errorf("gridapi: horizon must be > 0")
	}

	// The API exposes fixed forward windows; 48h covers the maximum
	// horizon the engine is allowed to request.
	now := time.Now().UTC()
	path := fmt.Sprintf("/intensity/%s/fw48h", now.Format(timeLayout))

	var body struct {
		Data []period `json:"data"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	limit := now.Add(time.Duration(horizonHours) * time.Hour)
	points := make([]intensity.ForecastPoint, 0, len(body.Data))
	for _, p := range body.Data {
		if p.Intensity.Forecast == nil {
			continue
		}
		ts, err := time.Parse(timeLayout, p.From)
		if err != nil {
			return nil, fmt.Errorf("gridapi: parse period start %q: %w", p.From, err)
		}
		if ts.UTC().After(limit) {
			continue
		}
		points = append(points, intensity.ForecastPoint{
			Region:     region,
			Timestamp:  ts.UTC(),
			Value:      *p.Intensity.Forecast,
			Confidence: forecastConfidence,
		})
	}

	return intensity.NormalizeForecast(points), nil
}

// getJSON performs a GET with transport-level retries.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("gridapi: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("gridapi: call api: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("gridapi: unexpected status: %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("gridapi: decode response: %w", err)
		}
		return nil
	})
}
