package intensity

import (
	"math"
	"testing"
	"time"
)

func TestReadingValidate(t *testing.T) {
	base := Reading{Region: "eu-west-1", Value: 250, Confidence: 0.9}

	tests := []struct {
		name    string
		mutate  func(*Reading)
		wantErr bool
	}{
		{"valid", func(r *Reading) {}, false},
		{"zero value", func(r *Reading) { r.Value = 0 }, false},
		{"negative value", func(r *Reading) { r.Value = -1 }, true},
		{"nan value", func(r *Reading) { r.Value = math.NaN() }, true},
		{"inf value", func(r *Reading) { r.Value = math.Inf(1) }, true},
		{"confidence above one", func(r *Reading) { r.Confidence = 1.5 }, true},
		{"negative confidence", func(r *Reading) { r.Confidence = -0.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeForecast(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	in := []ForecastPoint{
		{Timestamp: t0.Add(2 * time.Hour).In(loc), Value: 310},
		{Timestamp: t0, Value: 290},
		{Timestamp: t0.Add(time.Hour), Value: math.NaN()},
		{Timestamp: t0.Add(3 * time.Hour), Value: -5},
		{Timestamp: t0.Add(time.Hour), Value: 300, Confidence: 1.7},
	}

	out := NormalizeForecast(in)

	if len(out) != 3 {
		t.Fatalf("expected 3 points after normalization, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Before(out[i-1].Timestamp) {
			t.Errorf("points not sorted at index %d", i)
		}
	}
	if out[1].Confidence != 1 {
		t.Errorf("confidence not clamped: %v", out[1].Confidence)
	}
	if _, off := out[0].Timestamp.Zone(); off != 0 {
		t.Errorf("timestamps not normalized to UTC")
	}
}

func TestMeanValue(t *testing.T) {
	if _, ok := MeanValue(nil); ok {
		t.Error("expected false for empty series")
	}

	points := []ForecastPoint{{Value: 100}, {Value: 200}, {Value: 300}}
	mean, ok := MeanValue(points)
	if !ok || mean != 200 {
		t.Errorf("MeanValue = %v, %v; want 200, true", mean, ok)
	}
}
