package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VerdantProject/verdant/pkg/clock"
	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/intensity/fake"
)

var testProfiles = []config.RegionProfile{
	{Region: "EU West", Code: "eu-west-1", PUE: 1.2, RenewablePct: 68, StaticIntensity: 316},
	{Region: "US East", Code: "us-east-1", PUE: 1.4, RenewablePct: 35, StaticIntensity: 379},
}

func liveReading(value float64) intensity.Reading {
	return intensity.Reading{
		Value:      value,
		Confidence: 0.9,
		ObservedAt: time.Now().UTC(),
		Realtime:   true,
	}
}

func TestResolvePriorityOrder(t *testing.T) {
	grid := fake.New("grid", 1)
	commercial := fake.New("commercial", 2)

	grid.SetCurrent("eu-west-1", liveReading(120))
	commercial.SetCurrent("eu-west-1", liveReading(300))

	r := New([]intensity.Source{commercial, grid}, testProfiles)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Source != "grid" {
		t.Errorf("expected priority-1 source to win, got %s", reading.Source)
	}
	if reading.Value != 120 {
		t.Errorf("Value = %v, want 120", reading.Value)
	}
}

func TestResolveSkipsFailedSource(t *testing.T) {
	grid := fake.New("grid", 1)
	commercial := fake.New("commercial", 2)

	grid.Fail("eu-west-1", errors.New("connection refused"))
	commercial.SetCurrent("eu-west-1", liveReading(300))

	r := New([]intensity.Source{grid, commercial}, testProfiles)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Source != "commercial" {
		t.Errorf("expected fallthrough to commercial, got %s", reading.Source)
	}
}

func TestResolveSkipsZeroConfidence(t *testing.T) {
	grid := fake.New("grid", 1)
	grid.SetCurrent("eu-west-1", intensity.Reading{Value: 100, Confidence: 0, Realtime: false})

	r := New([]intensity.Source{grid}, testProfiles)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Source != "static" {
		t.Errorf("zero-confidence reading should not be accepted, got source %s", reading.Source)
	}
}

func TestResolveFallback(t *testing.T) {
	grid := fake.New("grid", 1)
	grid.Fail("eu-west-1", errors.New("down"))

	fallbacks := 0
	r := New([]intensity.Source{grid}, testProfiles,
		WithFallbackHook(func(region string) { fallbacks++ }),
	)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Value != 316 {
		t.Errorf("Value = %v, want static 316", reading.Value)
	}
	if reading.Confidence != 0 || reading.Realtime {
		t.Errorf("fallback must have zero confidence and Realtime=false: %+v", reading)
	}
	if fallbacks != 1 {
		t.Errorf("fallback hook called %d times, want 1", fallbacks)
	}
}

func TestResolveFallbackServedByStaticSource(t *testing.T) {
	// The static table is a real member of the source chain, consulted
	// last: its reading carries the adapter's name and the resolver
	// clock's timestamp.
	t0 := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	grid := fake.New("grid", 1)
	grid.Fail("eu-west-1", errors.New("down"))

	fallbacks := 0
	r := New([]intensity.Source{grid}, testProfiles,
		WithClock(clock.NewFake(t0)),
		WithFallbackHook(func(region string) { fallbacks++ }),
	)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Source != "static" {
		t.Errorf("Source = %q, want static", reading.Source)
	}
	if reading.Value != 316 {
		t.Errorf("Value = %v, want profile static 316", reading.Value)
	}
	if !reading.ObservedAt.Equal(t0) {
		t.Errorf("ObservedAt = %v, want resolver clock %v", reading.ObservedAt, t0)
	}
	if fallbacks != 1 {
		t.Errorf("fallback hook called %d times, want 1", fallbacks)
	}
}

func TestResolveStaticLosesToLiveSource(t *testing.T) {
	grid := fake.New("grid", 1)
	grid.SetCurrent("eu-west-1", liveReading(120))

	r := New([]intensity.Source{grid}, testProfiles)

	reading := r.Resolve(context.Background(), "eu-west-1")
	if reading.Source != "grid" {
		t.Errorf("live source must outrank the static table, got %s", reading.Source)
	}
}

func TestResolveFallbackInvariant(t *testing.T) {
	// confidence == 0 must imply Realtime == false for every resolved
	// region, live or degraded.
	grid := fake.New("grid", 1)
	grid.SetCurrent("eu-west-1", liveReading(120))
	grid.Fail("us-east-1", errors.New("down"))

	r := New([]intensity.Source{grid}, testProfiles)

	readings := r.ResolveAll(context.Background(), []string{"eu-west-1", "us-east-1"})
	for region, reading := range readings {
		if (reading.Confidence == 0) != !reading.Realtime {
			t.Errorf("region %s violates confidence/realtime invariant: %+v", region, reading)
		}
	}
}

func TestResolveAllOneEntryPerRegion(t *testing.T) {
	grid := fake.New("grid", 1)
	grid.SetCurrent("eu-west-1", liveReading(120))
	// us-east-1 and the unknown region have no source at all.

	r := New([]intensity.Source{grid}, testProfiles)

	regions := []string{"eu-west-1", "us-east-1", "ap-south-1"}
	readings := r.ResolveAll(context.Background(), regions)

	if len(readings) != len(regions) {
		t.Fatalf("expected %d entries, got %d", len(regions), len(readings))
	}
	if readings["us-east-1"].Value != 379 {
		t.Errorf("us-east-1 should use profile fallback, got %v", readings["us-east-1"].Value)
	}
	// Regions without a profile still appear, with a zero-value fallback.
	if got := readings["ap-south-1"]; got.Confidence != 0 || got.Realtime {
		t.Errorf("unknown region should degrade cleanly: %+v", got)
	}
}

func TestResolveAllSlowSourceDoesNotBlockBatch(t *testing.T) {
	slow := fake.New("slow", 1)
	slow.SetCurrent("eu-west-1", liveReading(120))
	slow.SetDelay(5 * time.Second)

	prompt := fake.New("prompt", 1)
	prompt.SetCurrent("us-east-1", liveReading(200))

	r := New([]intensity.Source{slow, prompt}, testProfiles,
		WithTimeouts(50*time.Millisecond, 200*time.Millisecond),
	)

	start := time.Now()
	readings := r.ResolveAll(context.Background(), []string{"eu-west-1", "us-east-1"})
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("batch took %v, should be bounded by batch timeout", elapsed)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(readings))
	}
	if readings["eu-west-1"].Realtime {
		t.Error("slow region should have degraded to fallback")
	}
	if readings["us-east-1"].Value != 200 {
		t.Errorf("fast region should resolve live, got %+v", readings["us-east-1"])
	}
}

func TestForecastForPrefersPriority(t *testing.T) {
	now := time.Now().UTC()
	grid := fake.New("grid", 1)
	commercial := fake.New("commercial", 2)

	grid.SetForecast("eu-west-1", []intensity.ForecastPoint{
		{Timestamp: now.Add(time.Hour), Value: 110, Confidence: 0.8},
	})
	commercial.SetForecast("eu-west-1", []intensity.ForecastPoint{
		{Timestamp: now.Add(time.Hour), Value: 330, Confidence: 0.8},
	})

	r := New([]intensity.Source{commercial, grid}, testProfiles)

	points := r.ForecastFor(context.Background(), "eu-west-1", 24)
	if len(points) != 1 || points[0].Value != 110 {
		t.Errorf("expected grid forecast, got %+v", points)
	}
}

func TestForecastForEmptyFallsThrough(t *testing.T) {
	grid := fake.New("grid", 1)
	commercial := fake.New("commercial", 2)

	now := time.Now().UTC()
	grid.SetForecast("eu-west-1", nil)
	commercial.SetForecast("eu-west-1", []intensity.ForecastPoint{
		{Timestamp: now.Add(time.Hour), Value: 330, Confidence: 0.8},
	})

	r := New([]intensity.Source{grid, commercial}, testProfiles)

	points := r.ForecastFor(context.Background(), "eu-west-1", 24)
	if len(points) != 1 || points[0].Value != 330 {
		t.Errorf("expected commercial forecast after empty grid series, got %+v", points)
	}
}

func TestForecastForNoCoverage(t *testing.T) {
	r := New(nil, testProfiles)
	if points := r.ForecastFor(context.Background(), "eu-west-1", 24); points != nil {
		t.Errorf("expected nil series, got %+v", points)
	}
}
