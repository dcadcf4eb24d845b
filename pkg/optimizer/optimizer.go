// Package optimizer turns a deadline, a duration, and per-region
// forecast curves into a scheduling decision: run now, defer to a
// cleaner window in the same region, or relocate to another region.
package optimizer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VerdantProject/verdant/pkg/carbon"
	"github.com/VerdantProject/verdant/pkg/intensity"
)

// ErrInfeasible signals that no schedule can satisfy the request, for
// example when the duration does not fit before the deadline. Callers
// surface it as a rejected request rather than truncating silently.
var ErrInfeasible = errors.New("infeasible schedule")

// Kind classifies a scheduling decision.
type Kind string

const (
	KindRunNow   Kind = "RUN_NOW"
	KindDefer    Kind = "DEFER"
	KindRelocate Kind = "RELOCATE"
)

// Candidate is one region under consideration, with its resolved
// current reading and normalized forecast.
type Candidate struct {
	Region   string
	Current  intensity.Reading
	Forecast []intensity.ForecastPoint
}

// Request describes the workload to place.
type Request struct {
	Candidates    []Candidate
	CurrentRegion string
	Duration      time.Duration
	Deadline      time.Time
	Portable      bool

	// Now pins the evaluation instant. Zero means wall-clock time;
	// tests pin it for determinism.
	Now time.Time
}

// Decision is the immutable outcome of one optimization. SavingsPercent
// is always relative to running immediately in the current region.
type Decision struct {
	Kind              Kind      `json:"kind"`
	Region            string    `json:"region"`
	StartAt           time.Time `json:"start_at"`
	ExpectedIntensity float64   `json:"expected_intensity"`
	SavingsPercent    float64   `json:"savings_percent"`
	Reason            string    `json:"reason"`
}

// Thresholds are the decision guards. Savings thresholds are percents;
// AcceptableIntensity is gCO2/kWh.
type Thresholds struct {
	MinSavingsDeferPct    float64
	MinSavingsRelocatePct float64
	AcceptableIntensity   float64
}

// DefaultThresholds requires 15% savings for any move and accepts an
// immediate start anywhere inside the low intensity band.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSavingsDeferPct:    15,
		MinSavingsRelocatePct: 15,
		AcceptableIntensity:   carbon.LowBandMax,
	}
}

// Optimizer evaluates requests against fixed thresholds.
type Optimizer struct {
	th     Thresholds
	logger *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for decision traces.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// New returns an Optimizer. Zero threshold fields take defaults.
func New(th Thresholds, opts ...Option) *Optimizer {
	def := DefaultThresholds()
	if th.MinSavingsDeferPct <= 0 {
		th.MinSavingsDeferPct = def.MinSavingsDeferPct
	}
	if th.MinSavingsRelocatePct <= 0 {
		th.MinSavingsRelocatePct = def.MinSavingsRelocatePct
	}
	if th.AcceptableIntensity <= 0 {
		th.AcceptableIntensity = def.AcceptableIntensity
	}
	o := &Optimizer{th: th, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// window is an internal candidate placement.
type window struct {
	region string
	start  time.Time
	mean   float64
}

// Optimize walks the decision guards in order of disruption: an
// acceptable immediate start wins outright, then a qualified
// relocation is checked because it must already beat the best
// same-region option by the relocation threshold, then a qualified
// deferral, and finally run-now as the fallback when nothing clears a
// threshold.
func (o *Optimizer) Optimize(req Request) (Decision, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	deadline := req.Deadline.UTC()

	if req.Duration <= 0 {
		return Decision{}, fmt.Errorf("%w: duration %s is not positive", ErrInfeasible, req.Duration)
	}
	latestStart := deadline.Add(-req.Duration)
	if latestStart.Before(now) {
		return Decision{}, fmt.Errorf("%w: duration %s does not fit before deadline %s",
			ErrInfeasible, req.Duration, deadline.Format(time.RFC3339))
	}

	current, ok := findCandidate(req.Candidates, req.CurrentRegion)
	if !ok {
		return Decision{}, fmt.Errorf("current region %q is not among the candidates", req.CurrentRegion)
	}
	baseline := current.Current.Value

	if o.runNowAcceptable(baseline) {
		return Decision{
			Kind:              KindRunNow,
			Region:            current.Region,
			StartAt:           now,
			ExpectedIntensity: baseline,
			SavingsPercent:    0,
			Reason: fmt.Sprintf("current intensity %.1f gCO2/kWh is within the acceptable band (<= %.1f)",
				baseline, o.th.AcceptableIntensity),
		}, nil
	}

	deferral, haveDeferral := o.bestDeferral(current, now, latestStart, req.Duration, deadline)

	bestSameRegion := baseline
	if haveDeferral && deferral.mean < bestSameRegion {
		bestSameRegion = deferral.mean
	}

	if req.Portable {
		relocation, haveRelocation := o.bestRelocation(req.Candidates, req.CurrentRegion, now, latestStart, req.Duration, deadline)
		if haveRelocation && savingsPercent(bestSameRegion, relocation.mean) >= o.th.MinSavingsRelocatePct {
			o.logDecision(KindRelocate, relocation, baseline)
			return Decision{
				Kind:              KindRelocate,
				Region:            relocation.region,
				StartAt:           relocation.start,
				ExpectedIntensity: relocation.mean,
				SavingsPercent:    savingsPercent(baseline, relocation.mean),
				Reason: fmt.Sprintf("region %s offers %.1f gCO2/kWh, %.1f%% below the best option in %s",
					relocation.region, relocation.mean, savingsPercent(bestSameRegion, relocation.mean), current.Region),
			}, nil
		}
	}

	if haveDeferral {
		savings := savingsPercent(baseline, deferral.mean)
		if deferral.start.Equal(now) {
			return Decision{
				Kind:              KindRunNow,
				Region:            current.Region,
				StartAt:           now,
				ExpectedIntensity: baseline,
				SavingsPercent:    0,
				Reason:            "an immediate start is the lowest-emission window before the deadline",
			}, nil
		}
		if savings >= o.th.MinSavingsDeferPct {
			o.logDecision(KindDefer, deferral, baseline)
			return Decision{
				Kind:              KindDefer,
				Region:            current.Region,
				StartAt:           deferral.start,
				ExpectedIntensity: deferral.mean,
				SavingsPercent:    savings,
				Reason: fmt.Sprintf("deferring to %s lowers expected intensity from %.1f to %.1f gCO2/kWh (%.1f%%)",
					deferral.start.Format(time.RFC3339), baseline, deferral.mean, savings),
			}, nil
		}
	}

	return Decision{
		Kind:              KindRunNow,
		Region:            current.Region,
		StartAt:           now,
		ExpectedIntensity: baseline,
		SavingsPercent:    0,
		Reason: fmt.Sprintf("no window before the deadline improves on %.1f gCO2/kWh by at least %.1f%%",
			baseline, o.th.MinSavingsDeferPct),
	}, nil
}

// runNowAcceptable is the first guard: the current intensity is already
// low enough that moving the workload is not worth the disruption.
func (o *Optimizer) runNowAcceptable(baseline float64) bool {
	return baseline <= o.th.AcceptableIntensity
}

// bestDeferral scans the current region's forecast for the start in
// [now, latestStart] with minimum mean intensity over the run window.
// Ties go to the earliest start; windows that are not fully covered by
// the forecast are skipped, never extrapolated.
func (o *Optimizer) bestDeferral(current Candidate, now, latestStart time.Time, duration time.Duration, deadline time.Time) (window, bool) {
	c, ok := buildCurve(current.Forecast, deadline)
	if !ok {
		return window{}, false
	}

	best := window{region: current.Region}
	found := false
	for _, start := range scanStarts(current.Forecast, now, latestStart) {
		mean, ok := c.meanAt(start, duration)
		if !ok {
			continue
		}
		if !found || mean < best.mean {
			best.start = start
			best.mean = mean
			found = true
		}
	}
	return best, found
}

// bestRelocation evaluates every other candidate region the same way as
// a deferral, excluding any whose forecast does not cover the whole
// span from now through the deadline. Ties between regions go to the
// lower mean, then the earlier start, then the region code.
func (o *Optimizer) bestRelocation(candidates []Candidate, currentRegion string, now, latestStart time.Time, duration time.Duration, deadline time.Time) (window, bool) {
	var best window
	found := false
	for _, cand := range candidates {
		if cand.Region == currentRegion {
			continue
		}
		c, ok := buildCurve(cand.Forecast, deadline)
		if !ok || !c.covers(now, deadline) {
			continue
		}
		for _, start := range scanStarts(cand.Forecast, now, latestStart) {
			mean, ok := c.meanAt(start, duration)
			if !ok {
				continue
			}
			w := window{region: cand.Region, start: start, mean: mean}
			if !found || better(w, best) {
				best = w
				found = true
			}
		}
	}
	return best, found
}

// better orders relocation windows: lower mean, then earlier start,
// then region code.
func better(a, b window) bool {
	if a.mean != b.mean {
		return a.mean < b.mean
	}
	if !a.start.Equal(b.start) {
		return a.start.Before(b.start)
	}
	return a.region < b.region
}

// scanStarts returns the candidate start instants: now itself plus
// every forecast timestamp inside [now, latestStart], in ascending
// order.
func scanStarts(points []intensity.ForecastPoint, now, latestStart time.Time) []time.Time {
	starts := []time.Time{now}
	for _, p := range points {
		ts := p.Timestamp.UTC()
		if ts.After(now) && !ts.After(latestStart) {
			starts = append(starts, ts)
		}
	}
	return starts
}

func findCandidate(candidates []Candidate, region string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Region == region {
			return c, true
		}
	}
	return Candidate{}, false
}

// savingsPercent is the relative improvement of candidate over
// baseline, in percent. A non-positive baseline yields zero so the
// percentage stays finite.
func savingsPercent(baseline, candidate float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (baseline - candidate) / baseline * 100
}

func (o *Optimizer) logDecision(kind Kind, w window, baseline float64) {
	o.logger.Debug("schedule decision",
		"kind", string(kind),
		"region", w.region,
		"start_at", w.start,
		"expected_intensity", w.mean,
		"baseline_intensity", baseline,
	)
}
