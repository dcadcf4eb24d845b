package config

import (
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
engine:
  min_savings_defer_pct: 10
  forecast_horizon_hours: 24
  rank_weights:
    cfp: 0.5
    forecast_cfp: 0.3
    efficiency: 0.1
    schedule: 0.1
regions:
  - region: EU West (Ireland)
    code: eu-west-1
    pue: 1.2
    renewable_pct: 68
    static_intensity: 316
  - region: US East (Virginia)
    code: us-east-1
    pue: 1.4
    renewable_pct: 35
    static_intensity: 379
sources:
  electricitymaps:
    api_key_env: EMAPS_API_KEY
    priority: 2
    zones:
      eu-west-1: IE
      us-east-1: US-MIDA-PJM
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Engine.MinSavingsDeferPct != 10 {
		t.Errorf("MinSavingsDeferPct = %v, want 10", cfg.Engine.MinSavingsDeferPct)
	}
	// Unset fields keep their defaults.
	if cfg.Engine.MinSavingsRelocatePct != 15 {
		t.Errorf("MinSavingsRelocatePct = %v, want default 15", cfg.Engine.MinSavingsRelocatePct)
	}
	if cfg.Engine.BaselineWindow != 10 {
		t.Errorf("BaselineWindow = %v, want default 10", cfg.Engine.BaselineWindow)
	}
	if cfg.Engine.ResolveTimeout != 4*time.Second {
		t.Errorf("ResolveTimeout = %v, want 4s", cfg.Engine.ResolveTimeout)
	}

	if len(cfg.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(cfg.Regions))
	}
	profile, ok := cfg.Profile("eu-west-1")
	if !ok || profile.RenewablePct != 68 {
		t.Errorf("Profile(eu-west-1) = %+v, %v", profile, ok)
	}

	if cfg.Sources.ElectricityMaps == nil {
		t.Fatal("expected electricitymaps source config")
	}
	if cfg.Sources.ElectricityMaps.Zones["us-east-1"] != "US-MIDA-PJM" {
		t.Errorf("unexpected zone mapping: %v", cfg.Sources.ElectricityMaps.Zones)
	}
}

func TestParseHorizonClamp(t *testing.T) {
	tests := []struct {
		name   string
		hours  string
		expect int
	}{
		{"below range", "12", 24},
		{"within range", "36", 36},
		{"above range", "168", 72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte("engine:\n  forecast_horizon_hours: " + tt.hours + "\n"))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if cfg.Engine.ForecastHorizonHours != tt.expect {
				t.Errorf("horizon = %d, want %d", cfg.Engine.ForecastHorizonHours, tt.expect)
			}
		})
	}
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing region code",
			"regions:\n  - region: Somewhere\n    pue: 1.1\n",
			"must have a code",
		},
		{
			"duplicate region code",
			"regions:\n  - code: a\n    pue: 1.1\n  - code: a\n    pue: 1.1\n",
			"duplicate region code",
		},
		{
			"pue below one",
			"regions:\n  - code: a\n    pue: 0.9\n",
			"pue must be >= 1.0",
		},
		{
			"regression bands not increasing",
			"engine:\n  regression:\n    minor_pct: 20\n    major_pct: 15\n    critical_pct: 30\n",
			"strictly increasing",
		},
		{
			"hotspot threshold out of range",
			"engine:\n  hotspot_threshold_pct: 100\n",
			"hotspot_threshold_pct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config failed validation: %v", err)
	}
	w := cfg.Engine.RankWeights
	if total := w.CFP + w.ForecastCFP + w.Efficiency + w.Schedule; total != 1.2 {
		t.Errorf("default weight reference total = %v, want 1.2", total)
	}
}
