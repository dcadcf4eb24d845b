// Package regression detects per-workload energy regressions against a
// rolling baseline and flags the components that dominate a run's
// energy draw.
package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Severity classifies how far a measurement sits above its baseline.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// Default thresholds, in percent over baseline. Bands are inclusive at
// the lower bound: a delta of exactly 15% is MAJOR, not MINOR.
const (
	DefaultMinorPct    = 5.0
	DefaultMajorPct    = 15.0
	DefaultCriticalPct = 30.0

	// DefaultHotspotPct flags components strictly above this share of
	// the total. Exactly 20% is not a hotspot.
	DefaultHotspotPct = 20.0

	// DefaultBaselineWindow is the number of accepted samples the
	// rolling baseline averages over.
	DefaultBaselineWindow = 10

	// sumTolerancePct bounds how far component and phase sums may
	// drift from the reported total before the measurement is
	// rejected.
	sumTolerancePct = 5.0
)

// ErrInvalidMeasurement marks a measurement rejected before any
// baseline interaction.
var ErrInvalidMeasurement = errors.New("invalid measurement")

// Components breaks a run's energy down by subsystem, in joules.
type Components struct {
	CPUJoules     float64 `json:"cpu_joules"`
	GPUJoules     float64 `json:"gpu_joules"`
	RAMJoules     float64 `json:"ram_joules"`
	DiskJoules    float64 `json:"disk_joules"`
	NetworkJoules float64 `json:"network_joules"`
}

func (c Components) total() float64 {
	return c.CPUJoules + c.GPUJoules + c.RAMJoules + c.DiskJoules + c.NetworkJoules
}

// Phase is one named stage of a run.
type Phase struct {
	Name    string  `json:"name"`
	Joules  float64 `json:"joules"`
	Seconds float64 `json:"seconds"`
}

// Measurement is one observed run of a workload.
type Measurement struct {
	ID          string     `json:"id"`
	Workload    string     `json:"workload"`
	Branch      string     `json:"branch"`
	CommitSHA   string     `json:"commit_sha,omitempty"`
	TotalJoules float64    `json:"total_joules"`
	Components  Components `json:"components"`
	Phases      []Phase    `json:"phases,omitempty"`
	RecordedAt  time.Time  `json:"recorded_at"`
}

// Validate rejects structurally broken measurements: missing keys,
// non-finite or negative energies, and component or phase sums that
// disagree with the total beyond tolerance.
func (m Measurement) Validate() error {
	if m.Workload == "" {
		return fmt.Errorf("%w: workload is required", ErrInvalidMeasurement)
	}
	if m.Branch == "" {
		return fmt.Errorf("%w: branch is required", ErrInvalidMeasurement)
	}
	if !finiteNonNegative(m.TotalJoules) || m.TotalJoules == 0 {
		return fmt.Errorf("%w: total %v joules is not a positive finite value", ErrInvalidMeasurement, m.TotalJoules)
	}
	for _, v := range []float64{m.Components.CPUJoules, m.Components.GPUJoules, m.Components.RAMJoules, m.Components.DiskJoules, m.Components.NetworkJoules} {
		if !finiteNonNegative(v) {
			return fmt.Errorf("%w: negative or non-finite component energy", ErrInvalidMeasurement)
		}
	}
	if sum := m.Components.total(); sum > 0 && !withinTolerance(sum, m.TotalJoules) {
		return fmt.Errorf("%w: component sum %.1f J disagrees with total %.1f J beyond %.0f%%",
			ErrInvalidMeasurement, sum, m.TotalJoules, sumTolerancePct)
	}
	var phaseSum float64
	for _, p := range m.Phases {
		if p.Name == "" {
			return fmt.Errorf("%w: unnamed phase", ErrInvalidMeasurement)
		}
		if !finiteNonNegative(p.Joules) || !finiteNonNegative(p.Seconds) {
			return fmt.Errorf("%w: phase %q has negative or non-finite values", ErrInvalidMeasurement, p.Name)
		}
		phaseSum += p.Joules
	}
	if len(m.Phases) > 0 && !withinTolerance(phaseSum, m.TotalJoules) {
		return fmt.Errorf("%w: phase sum %.1f J disagrees with total %.1f J beyond %.0f%%",
			ErrInvalidMeasurement, phaseSum, m.TotalJoules, sumTolerancePct)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func withinTolerance(sum, total float64) bool {
	if total <= 0 {
		return false
	}
	return math.Abs(sum-total)/total*100 <= sumTolerancePct
}

// Baseline is the rolling mean energy for one (branch, workload) key.
type Baseline struct {
	Branch       string    `json:"branch"`
	Workload     string    `json:"workload"`
	EnergyJoules float64   `json:"energy_joules"`
	Samples      int       `json:"samples"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Accept folds a non-regressing measurement's energy into the rolling
// mean: a plain incremental mean while the window is filling, then a
// moving-average approximation once it holds window samples. Samples
// saturates at the window size.
func (b Baseline) Accept(totalJoules float64, window int, at time.Time) Baseline {
	if window <= 0 {
		window = DefaultBaselineWindow
	}
	next := b
	switch {
	case b.Samples <= 0:
		next.EnergyJoules = totalJoules
		next.Samples = 1
	case b.Samples < window:
		next.EnergyJoules = (b.EnergyJoules*float64(b.Samples) + totalJoules) / float64(b.Samples+1)
		next.Samples = b.Samples + 1
	default:
		next.EnergyJoules = b.EnergyJoules + (totalJoules-b.EnergyJoules)/float64(window)
		next.Samples = window
	}
	next.UpdatedAt = at.UTC()
	return next
}

// Hotspot is an execution phase drawing a disproportionate share of a
// run's energy.
type Hotspot struct {
	Phase          string  `json:"phase"`
	Joules         float64 `json:"joules"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// Result is the outcome of evaluating one measurement. Seeded is set
// when no baseline existed and this measurement becomes the first
// sample; DeltaPercent is zero in that case.
type Result struct {
	MeasurementID string    `json:"measurement_id"`
	Branch        string    `json:"branch"`
	Workload      string    `json:"workload"`
	DeltaPercent  float64   `json:"delta_percent"`
	Severity      Severity  `json:"severity"`
	Hotspots      []Hotspot `json:"hotspots,omitempty"`
	Seeded        bool      `json:"seeded,omitempty"`
}

// Thresholds configure the severity bands and the hotspot cut.
type Thresholds struct {
	MinorPct    float64
	MajorPct    float64
	CriticalPct float64
	HotspotPct  float64
}

// DefaultThresholds returns the 5/15/30 severity bands and the 20%
// hotspot cut.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinorPct:    DefaultMinorPct,
		MajorPct:    DefaultMajorPct,
		CriticalPct: DefaultCriticalPct,
		HotspotPct:  DefaultHotspotPct,
	}
}

// Detector evaluates measurements against baselines. It is pure: the
// caller owns baseline storage and decides when to fold a measurement
// in (only when the result severity is NONE).
type Detector struct {
	th Thresholds
}

// NewDetector fills zero threshold fields with defaults.
func NewDetector(th Thresholds) *Detector {
	def := DefaultThresholds()
	if th.MinorPct <= 0 {
		th.MinorPct = def.MinorPct
	}
	if th.MajorPct <= 0 {
		th.MajorPct = def.MajorPct
	}
	if th.CriticalPct <= 0 {
		th.CriticalPct = def.CriticalPct
	}
	if th.HotspotPct <= 0 {
		th.HotspotPct = def.HotspotPct
	}
	return &Detector{th: th}
}

// Evaluate compares a validated measurement against its baseline. With
// no prior baseline (zero samples) the measurement seeds and the
// severity is NONE. Evaluate never mutates the baseline, so repeated
// calls with the same inputs return the same result.
func (d *Detector) Evaluate(m Measurement, b Baseline) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{
		MeasurementID: m.ID,
		Branch:        m.Branch,
		Workload:      m.Workload,
		Severity:      SeverityNone,
		Hotspots:      d.hotspots(m),
	}

	if b.Samples <= 0 {
		res.Seeded = true
		return res, nil
	}

	res.DeltaPercent = (m.TotalJoules - b.EnergyJoules) / b.EnergyJoules * 100
	res.Severity = d.severity(res.DeltaPercent)
	return res, nil
}

// severity maps a delta percent to its band. Lower bounds are
// inclusive; deltas at or below zero are NONE.
func (d *Detector) severity(deltaPct float64) Severity {
	switch {
	case deltaPct >= d.th.CriticalPct:
		return SeverityCritical
	case deltaPct >= d.th.MajorPct:
		return SeverityMajor
	case deltaPct >= d.th.MinorPct:
		return SeverityMinor
	default:
		return SeverityNone
	}
}

// hotspots returns the phases strictly above the hotspot share,
// ordered by descending share with the phase name as the deterministic
// tie-break. A phase at exactly the threshold is not a hotspot.
func (d *Detector) hotspots(m Measurement) []Hotspot {
	if m.TotalJoules <= 0 {
		return nil
	}

	var out []Hotspot
	for _, p := range m.Phases {
		pct := p.Joules / m.TotalJoules * 100
		if pct > d.th.HotspotPct {
			out = append(out, Hotspot{Phase: p.Name, Joules: p.Joules, PercentOfTotal: pct})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PercentOfTotal != out[j].PercentOfTotal {
			return out[i].PercentOfTotal > out[j].PercentOfTotal
		}
		return out[i].Phase < out[j].Phase
	})
	return out
}
