// Package intensity defines the carbon-intensity data model and the
// contract every intensity data source implements.
package intensity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Reading is a single carbon-intensity observation for a region.
// A Reading is immutable once created.
type Reading struct {
	Region     string    `json:"region"`
	Value      float64   `json:"value"` // gCO2/kWh
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	Realtime   bool      `json:"realtime"`
}

// ForecastPoint is one predicted intensity value in an ordered series.
type ForecastPoint struct {
	Region     string    `json:"region"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"` // gCO2/kWh
	Confidence float64   `json:"confidence"`
}

// Source is a single carbon-intensity data provider.
//
// Sources declare which regions they cover and a priority rank per region
// (lower is queried first). Each source fails independently; transport
// retries live inside the source, never in the resolver.
type Source interface {
	// Name identifies the source in readings and logs.
	Name() string

	// Covers reports whether the source can serve the region at all.
	Covers(region string) bool

	// Priority returns the source's rank for the region. Lower ranks are
	// consulted first. Only meaningful when Covers(region) is true.
	Priority(region string) int

	// Current returns the latest intensity reading for the region.
	Current(ctx context.Context, region string) (Reading, error)

	// Forecast returns predicted intensity for up to horizonHours ahead,
	// ordered by timestamp.
	Forecast(ctx context.Context, region string, horizonHours int) ([]ForecastPoint, error)
}

// Validate rejects structurally invalid readings: non-finite or negative
// values never propagate into scoring.
func (r Reading) Validate() error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("reading for %s: value is not finite", r.Region)
	}
	if r.Value < 0 {
		return fmt.Errorf("reading for %s: negative intensity %v", r.Region, r.Value)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("reading for %s: confidence %v outside [0,1]", r.Region, r.Confidence)
	}
	return nil
}

// NormalizeForecast returns the series in UTC, sorted by timestamp, with
// invalid points dropped. The input slice is not modified.
func NormalizeForecast(points []ForecastPoint) []ForecastPoint {
	out := make([]ForecastPoint, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value < 0 {
			continue
		}
		if p.Confidence < 0 {
			p.Confidence = 0
		}
		if p.Confidence > 1 {
			p.Confidence = 1
		}
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// MeanValue returns the arithmetic mean of the series values.
// Returns false for an empty series.
func MeanValue(points []ForecastPoint) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points)), true
}
