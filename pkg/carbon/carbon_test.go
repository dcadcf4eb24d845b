package carbon

import (
	"math"
	"testing"
)

func TestToGrams(t *testing.T) {
	tests := []struct {
		name      string
		joules    float64
		intensity float64
		want      float64
	}{
		{"global average suite run", 12_500, 436, 1.5139},
		{"one kwh at unit intensity", JoulesPerKWh, 1, 1},
		{"zero energy", 0, 500, 0},
		{"zero intensity", 50_000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToGrams(tt.joules, tt.intensity)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("ToGrams(%v, %v) = %v, want %v", tt.joules, tt.intensity, got, tt.want)
			}
		})
	}
}

func TestToGramsRoundTrip(t *testing.T) {
	const energy = 98_765.4
	const intensity = 312.5

	grams := ToGrams(energy, intensity)
	recovered := grams / intensity * JoulesPerKWh

	if math.Abs(recovered-energy) > 1e-6 {
		t.Errorf("round trip recovered %v, want %v", recovered, energy)
	}
}

func TestToEquivalents(t *testing.T) {
	eq := ToEquivalents(822)

	if math.Abs(eq.PhoneCharges-100) > 0.01 {
		t.Errorf("PhoneCharges = %v, want 100", eq.PhoneCharges)
	}
	if eq.MilesDriven <= 0 || eq.StreamingHours <= 0 {
		t.Errorf("expected positive equivalents, got %+v", eq)
	}
}

func TestIntensityBand(t *testing.T) {
	tests := []struct {
		intensity float64
		want      Band
	}{
		{0, BandLow},
		{199.9, BandLow},
		{200, BandModerate},
		{399.9, BandModerate},
		{400, BandHigh},
		{950, BandHigh},
	}

	for _, tt := range tests {
		if got := IntensityBand(tt.intensity); got != tt.want {
			t.Errorf("IntensityBand(%v) = %v, want %v", tt.intensity, got, tt.want)
		}
	}
}
