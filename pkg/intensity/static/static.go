// Package static serves region-profile fallback intensities as a
// last-resort intensity source.
//
// Static readings carry zero confidence and Realtime=false so the
// resolver and its callers can always tell a degraded answer from a live
// one. The source never produces a forecast: a static table has no time
// dimension, and extrapolating one would be indistinguishable from real
// data downstream.
package static

import (
	"context"
	"fmt"
	"time"

	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
)

// Priority places the static table after every live source.
const Priority = 100

// Source serves fallback readings from region profiles.
type Source struct {
	profiles map[string]config.RegionProfile
	nowFunc  func() time.Time
}

// Option configures optional Source behavior.
type Option func(*Source)

// WithNow overrides the timestamp source for readings (used in tests
// and by callers carrying their own clock).
func WithNow(now func() time.Time) Option {
	return func(s *Source) { s.nowFunc = now }
}

// New creates a Source from region profiles.
func New(profiles []config.RegionProfile, opts ...Option) *Source {
	m := make(map[string]config.RegionProfile, len(profiles))
	for _, p := range profiles {
		m[p.Code] = p
	}
	s := &Source{profiles: m, nowFunc: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return "static"
}

// Covers reports whether a profile exists for the region.
func (s *Source) Covers(region string) bool {
	_, ok := s.profiles[region]
	return ok
}

// Priority returns the last-resort rank for any covered region.
func (s *Source) Priority(region string) int {
	return Priority
}

// Current returns the profile's static fallback intensity.
func (s *Source) Current(ctx context.Context, region string) (intensity.Reading, error) {
	p, ok := s.profiles[region]
	if !ok {
		return intensity.Reading{}, fmt.Errorf("static: no profile for region %s", region)
	}
	return Reading(p, s.nowFunc()), nil
}

// Forecast always returns an empty series: static data is not a forecast.
func (s *Source) Forecast(ctx context.Context, region string, horizonHours int) ([]intensity.ForecastPoint, error) {
	if _, ok := s.profiles[region]; !ok {
		return nil, fmt.Errorf("static: no profile for region %s", region)
	}
	return nil, nil
}

// Reading builds the fallback reading for a profile at a given time.
func Reading(p config.RegionProfile, at time.Time) intensity.Reading {
	return intensity.Reading{
		Region:     p.Code,
		Value:      p.StaticIntensity,
		Confidence: 0,
		Source:     "static",
		ObservedAt: at.UTC(),
		Realtime:   false,
	}
}
