// Package config loads and validates the Verdant configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Verdant.
type Config struct {
	Engine  EngineConfig    `yaml:"engine,omitempty"`
	Regions []RegionProfile `yaml:"regions"`
	Sources SourcesConfig   `yaml:"sources,omitempty"`
	Server  ServerConfig    `yaml:"server,omitempty"`
	Notify  NotifyConfig    `yaml:"notify,omitempty"`
}

// EngineConfig carries the decision-engine tunables.
type EngineConfig struct {
	// Minimum expected savings (percent) required to defer or relocate.
	MinSavingsDeferPct    float64 `yaml:"min_savings_defer_pct,omitempty"`
	MinSavingsRelocatePct float64 `yaml:"min_savings_relocate_pct,omitempty"`

	// AcceptableIntensity is the gCO2/kWh level at or below which a
	// workload runs immediately without scanning for a better window.
	AcceptableIntensity float64 `yaml:"acceptable_intensity,omitempty"`

	Regression          RegressionThresholds `yaml:"regression,omitempty"`
	HotspotThresholdPct float64              `yaml:"hotspot_threshold_pct,omitempty"`
	BaselineWindow      int                  `yaml:"baseline_window,omitempty"`

	ForecastHorizonHours int           `yaml:"forecast_horizon_hours,omitempty"`
	RankWeights          RankWeights   `yaml:"rank_weights,omitempty"`
	ResolveTimeout       time.Duration `yaml:"resolve_timeout,omitempty"`
	BatchTimeout         time.Duration `yaml:"batch_timeout,omitempty"`

	// PolicyFile points to an optional decision policy YAML file.
	PolicyFile string `yaml:"policy_file,omitempty"`
}

// RegressionThresholds are the severity band lower bounds in percent.
type RegressionThresholds struct {
	MinorPct    float64 `yaml:"minor_pct,omitempty"`
	MajorPct    float64 `yaml:"major_pct,omitempty"`
	CriticalPct float64 `yaml:"critical_pct,omitempty"`
}

// RankWeights are the region ranker component weights.
// The defaults sum to a reference total of 1.2 so relative magnitudes
// stay interpretable when individual weights are tuned.
type RankWeights struct {
	CFP         float64 `yaml:"cfp,omitempty"`
	ForecastCFP float64 `yaml:"forecast_cfp,omitempty"`
	Efficiency  float64 `yaml:"efficiency,omitempty"`
	Schedule    float64 `yaml:"schedule,omitempty"`
}

// RegionProfile is the static efficiency metadata for one region.
// Profiles are loaded once per process and read-only at decision time.
type RegionProfile struct {
	Region          string  `yaml:"region"` // human-readable name
	Code            string  `yaml:"code"`   // canonical region code, e.g. eu-west-1
	Location        string  `yaml:"location,omitempty"`
	PUE             float64 `yaml:"pue"`
	RenewablePct    float64 `yaml:"renewable_pct"`
	StaticIntensity float64 `yaml:"static_intensity"` // fallback gCO2/kWh
}

// SourcesConfig configures the intensity data sources.
type SourcesConfig struct {
	ElectricityMaps *ElectricityMapsConfig `yaml:"electricitymaps,omitempty"`
	GridAPI         *GridAPIConfig         `yaml:"gridapi,omitempty"`
}

// ElectricityMapsConfig configures the commercial marginal-emissions API.
type ElectricityMapsConfig struct {
	APIKeyEnv string            `yaml:"api_key_env,omitempty"` // environment variable name
	BaseURL   string            `yaml:"base_url,omitempty"`
	Zones     map[string]string `yaml:"zones,omitempty"` // region code -> provider zone
	Priority  int               `yaml:"priority,omitempty"`
}

// GridAPIConfig configures a national grid intensity API.
type GridAPIConfig struct {
	BaseURL  string   `yaml:"base_url,omitempty"`
	Regions  []string `yaml:"regions,omitempty"` // region codes covered by this grid
	Priority int      `yaml:"priority,omitempty"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"` // Default: ":8080"
	DBPath  string `yaml:"db_path,omitempty"` // Default: in-memory store
}

// NotifyConfig configures regression alerting.
type NotifyConfig struct {
	WebhookURL string            `yaml:"webhook_url,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// Default returns a Config with all engine tunables at their defaults
// and no regions or sources configured.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MinSavingsDeferPct:    15,
			MinSavingsRelocatePct: 15,
			AcceptableIntensity:   200,
			Regression: RegressionThresholds{
				MinorPct:    5,
				MajorPct:    15,
				CriticalPct: 30,
			},
			HotspotThresholdPct:  20,
			BaselineWindow:       10,
			ForecastHorizonHours: 48,
			RankWeights: RankWeights{
				CFP:         0.4,
				ForecastCFP: 0.4,
				Efficiency:  0.3,
				Schedule:    0.1,
			},
			ResolveTimeout: 4 * time.Second,
			BatchTimeout:   10 * time.Second,
		},
		Server: ServerConfig{
			Address: ":8080",
		},
	}
}

// Load reads configuration from a file path, applying defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults restores defaults for fields explicitly zeroed in YAML
// and clamps the forecast horizon to its supported range.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Engine.BaselineWindow <= 0 {
		c.Engine.BaselineWindow = def.Engine.BaselineWindow
	}
	if c.Engine.ForecastHorizonHours <= 0 {
		c.Engine.ForecastHorizonHours = def.Engine.ForecastHorizonHours
	}
	if c.Engine.ForecastHorizonHours < 24 {
		c.Engine.ForecastHorizonHours = 24
	}
	if c.Engine.ForecastHorizonHours > 72 {
		c.Engine.ForecastHorizonHours = 72
	}
	if c.Engine.ResolveTimeout <= 0 {
		c.Engine.ResolveTimeout = def.Engine.ResolveTimeout
	}
	if c.Engine.BatchTimeout <= 0 {
		c.Engine.BatchTimeout = def.Engine.BatchTimeout
	}
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Regions))
	for _, r := range c.Regions {
		if r.Code == "" {
			return fmt.Errorf("region %q must have a code", r.Region)
		}
		if seen[r.Code] {
			return fmt.Errorf("duplicate region code: %s", r.Code)
		}
		seen[r.Code] = true

		if r.PUE < 1.0 {
			return fmt.Errorf("region %s: pue must be >= 1.0", r.Code)
		}
		if r.RenewablePct < 0 || r.RenewablePct > 100 {
			return fmt.Errorf("region %s: renewable_pct must be within [0,100]", r.Code)
		}
		if r.StaticIntensity < 0 {
			return fmt.Errorf("region %s: static_intensity must be >= 0", r.Code)
		}
	}

	e := c.Engine
	if e.MinSavingsDeferPct < 0 || e.MinSavingsRelocatePct < 0 {
		return fmt.Errorf("minimum savings thresholds must be >= 0")
	}
	if e.Regression.MinorPct >= e.Regression.MajorPct || e.Regression.MajorPct >= e.Regression.CriticalPct {
		return fmt.Errorf("regression thresholds must be strictly increasing: %v/%v/%v",
			e.Regression.MinorPct, e.Regression.MajorPct, e.Regression.CriticalPct)
	}
	if e.HotspotThresholdPct <= 0 || e.HotspotThresholdPct >= 100 {
		return fmt.Errorf("hotspot_threshold_pct must be within (0,100)")
	}

	w := e.RankWeights
	if w.CFP < 0 || w.ForecastCFP < 0 || w.Efficiency < 0 || w.Schedule < 0 {
		return fmt.Errorf("rank weights must be >= 0")
	}

	return nil
}

// Profile returns the region profile for a code.
func (c *Config) Profile(code string) (RegionProfile, bool) {
	for _, r := range c.Regions {
		if r.Code == code {
			return r, true
		}
	}
	return RegionProfile{}, false
}

// ProfileMap returns the regions keyed by code.
func (c *Config) ProfileMap() map[string]RegionProfile {
	m := make(map[string]RegionProfile, len(c.Regions))
	for _, r := range c.Regions {
		m[r.Code] = r
	}
	return m
}
