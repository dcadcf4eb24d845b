// Package fake provides a scriptable in-memory intensity source for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VerdantProject/verdant/pkg/intensity"
)

// Source is a scriptable intensity source. All methods are safe for
// concurrent use.
type Source struct {
	name     string
	priority int

	mu        sync.RWMutex
	current   map[string]intensity.Reading
	forecasts map[string][]intensity.ForecastPoint
	errs      map[string]error
	delay     time.Duration
	calls     int
}

// New creates a fake source with the given name and priority.
func New(name string, priority int) *Source {
	return &Source{
		name:      name,
		priority:  priority,
		current:   make(map[string]intensity.Reading),
		forecasts: make(map[string][]intensity.ForecastPoint),
		errs:      make(map[string]error),
	}
}

// SetCurrent scripts the current reading for a region.
func (s *Source) SetCurrent(region string, r intensity.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Region = region
	r.Source = s.name
	s.current[region] = r
}

// SetForecast scripts the forecast series for a region.
func (s *Source) SetForecast(region string, points []intensity.ForecastPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts[region] = points
}

// Fail makes every call for the region return err.
func (s *Source) Fail(region string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[region] = err
}

// SetDelay makes every call block for d (or until the context ends).
func (s *Source) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns the number of Current/Forecast invocations.
func (s *Source) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// Name returns the configured source name.
func (s *Source) Name() string {
	return s.name
}

// Covers reports whether the region has a scripted reading, forecast, or error.
func (s *Source) Covers(region string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.current[region]; ok {
		return true
	}
	if _, ok := s.forecasts[region]; ok {
		return true
	}
	_, ok := s.errs[region]
	return ok
}

// Priority returns the configured rank for any covered region.
func (s *Source) Priority(region string) int {
	return s.priority
}

// Current returns the scripted reading for the region.
func (s *Source) Current(ctx context.Context, region string) (intensity.Reading, error) {
	if err := s.wait(ctx); err != nil {
		return intensity.Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err, ok := s.errs[region]; ok {
		return intensity.Reading{}, err
	}
	r, ok := s.current[region]
	if !ok {
		return intensity.Reading{}, fmt.Errorf("fake %s: no reading scripted for %s", s.name, region)
	}
	return r, nil
}

// Forecast returns the scripted series for the region.
func (s *Source) Forecast(ctx context.Context, region string, horizonHours int) ([]intensity.ForecastPoint, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err, ok := s.errs[region]; ok {
		return nil, err
	}
	points := s.forecasts[region]
	out := make([]intensity.ForecastPoint, len(points))
	copy(out, points)
	return out, nil
}

// wait blocks for the scripted delay, honoring context cancellation.
func (s *Source) wait(ctx context.Context) error {
	s.mu.RLock()
	delay := s.delay
	s.mu.RUnlock()

	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
