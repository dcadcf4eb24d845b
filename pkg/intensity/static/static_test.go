package static

import (
	"context"
	"testing"
	"time"

	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
)

var _ intensity.Source = (*Source)(nil)

var testProfiles = []config.RegionProfile{
	{Region: "EU West", Code: "eu-west-1", PUE: 1.2, RenewablePct: 68, StaticIntensity: 316},
	{Region: "US East", Code: "us-east-1", PUE: 1.4, RenewablePct: 35, StaticIntensity: 379},
}

func TestCurrent(t *testing.T) {
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	src := New(testProfiles, WithNow(func() time.Time { return at }))

	reading, err := src.Current(context.Background(), "eu-west-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if reading.Value != 316 {
		t.Errorf("Value = %v, want 316", reading.Value)
	}
	if reading.Confidence != 0 || reading.Realtime {
		t.Errorf("static reading must be degraded on both axes: %+v", reading)
	}
	if reading.Source != "static" {
		t.Errorf("Source = %q, want static", reading.Source)
	}
	if !reading.ObservedAt.Equal(at) {
		t.Errorf("ObservedAt = %v, want %v", reading.ObservedAt, at)
	}
	if err := reading.Validate(); err != nil {
		t.Errorf("static reading failed validation: %v", err)
	}
}

func TestCurrentUnknownRegion(t *testing.T) {
	src := New(testProfiles)
	if _, err := src.Current(context.Background(), "ap-south-1"); err == nil {
		t.Error("expected error for region without a profile")
	}
}

func TestCovers(t *testing.T) {
	src := New(testProfiles)
	if !src.Covers("us-east-1") {
		t.Error("should cover a profiled region")
	}
	if src.Covers("ap-south-1") {
		t.Error("should not cover an unprofiled region")
	}
}

func TestPriorityIsLastResort(t *testing.T) {
	src := New(testProfiles)
	if got := src.Priority("eu-west-1"); got != Priority {
		t.Errorf("Priority = %d, want %d", got, Priority)
	}
}

func TestForecastIsEmpty(t *testing.T) {
	src := New(testProfiles)

	points, err := src.Forecast(context.Background(), "eu-west-1", 24)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("static source must not fabricate forecasts, got %d points", len(points))
	}

	if _, err := src.Forecast(context.Background(), "ap-south-1", 24); err == nil {
		t.Error("expected error for region without a profile")
	}
}
