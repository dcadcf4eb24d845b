// Package engine wires the resolver, ranker, optimizer, and regression
// detector behind one facade the HTTP server and CLI share.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/VerdantProject/verdant/pkg/carbon"
	"github.com/VerdantProject/verdant/pkg/clock"
	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/notify"
	"github.com/VerdantProject/verdant/pkg/optimizer"
	"github.com/VerdantProject/verdant/pkg/policy"
	"github.com/VerdantProject/verdant/pkg/ranker"
	"github.com/VerdantProject/verdant/pkg/regression"
	"github.com/VerdantProject/verdant/pkg/resolver"
	"github.com/VerdantProject/verdant/pkg/store"
)

// Engine is the carbon-aware scheduling decision engine.
type Engine struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	opt      *optimizer.Optimizer
	detector *regression.Detector
	store    store.Store
	policies *policy.Evaluator
	notifier notify.Notifier
	metrics  *Metrics
	logger   *slog.Logger
	clock    clock.Clock
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the clock (used in tests).
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithPolicy installs a decision policy evaluator.
func WithPolicy(ev *policy.Evaluator) Option {
	return func(e *Engine) { e.policies = ev }
}

// WithNotifier overrides the regression notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an Engine over the configured sources and store.
func New(cfg *config.Config, sources []intensity.Source, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   st,
		logger:  slog.Default(),
		clock:   clock.Real(),
		metrics: NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = notify.NewLogNotifier(e.logger)
	}

	e.resolver = resolver.New(sources, cfg.Regions,
		resolver.WithTimeouts(cfg.Engine.ResolveTimeout, cfg.Engine.BatchTimeout),
		resolver.WithClock(e.clock),
		resolver.WithLogger(e.logger),
		resolver.WithFallbackHook(func(region string) {
			e.metrics.fallbacksTotal.WithLabelValues(region).Inc()
		}),
	)
	e.opt = optimizer.New(optimizer.Thresholds{
		MinSavingsDeferPct:    cfg.Engine.MinSavingsDeferPct,
		MinSavingsRelocatePct: cfg.Engine.MinSavingsRelocatePct,
		AcceptableIntensity:   cfg.Engine.AcceptableIntensity,
	}, optimizer.WithLogger(e.logger))
	e.detector = regression.NewDetector(regression.Thresholds{
		MinorPct:    cfg.Engine.Regression.MinorPct,
		MajorPct:    cfg.Engine.Regression.MajorPct,
		CriticalPct: cfg.Engine.Regression.CriticalPct,
		HotspotPct:  cfg.Engine.HotspotThresholdPct,
	})
	return e
}

// Regions returns the configured region profiles.
func (e *Engine) Regions() []config.RegionProfile {
	return e.cfg.Regions
}

// RegionIntensity is one region's resolved signal with its band.
type RegionIntensity struct {
	Reading intensity.Reading `json:"reading"`
	Band    carbon.Band       `json:"band"`
}

// Intensity resolves the current reading for one region.
func (e *Engine) Intensity(ctx context.Context, region string) RegionIntensity {
	r := e.resolver.Resolve(ctx, region)
	return RegionIntensity{Reading: r, Band: carbon.IntensityBand(r.Value)}
}

// RankedRegion is a rank score joined with its resolved reading.
type RankedRegion struct {
	ranker.Score
	Intensity intensity.Reading `json:"intensity"`
	Band      carbon.Band       `json:"band"`
}

// RankRegions resolves and ranks candidate regions best-first. An empty
// region list means all configured regions.
func (e *Engine) RankRegions(ctx context.Context, regions []string, scheduleWeight float64) []RankedRegion {
	if len(regions) == 0 {
		for _, p := range e.cfg.Regions {
			regions = append(regions, p.Code)
		}
	}

	readings, forecasts := e.resolveBatch(ctx, regions)

	inputs := make([]ranker.Input, 0, len(regions))
	for _, code := range regions {
		profile, ok := e.cfg.Profile(code)
		if !ok {
			e.logger.Warn("skipping unknown region", "region", code)
			continue
		}
		inputs = append(inputs, ranker.Input{
			Profile:  profile,
			Current:  readings[code],
			Forecast: forecasts[code],
		})
	}

	scores := ranker.Rank(inputs, ranker.FromConfig(e.cfg.Engine.RankWeights), scheduleWeight)

	out := make([]RankedRegion, 0, len(scores))
	for _, s := range scores {
		r := readings[s.Region]
		out = append(out, RankedRegion{
			Score:     s,
			Intensity: r,
			Band:      carbon.IntensityBand(r.Value),
		})
	}
	return out
}

// resolveBatch resolves current readings and forecasts for a region
// set, timing the whole round trip.
func (e *Engine) resolveBatch(ctx context.Context, regions []string) (map[string]intensity.Reading, map[string][]intensity.ForecastPoint) {
	started := e.clock.Now()
	readings := e.resolver.ResolveAll(ctx, regions)
	forecasts := e.resolver.ForecastAll(ctx, regions, e.cfg.Engine.ForecastHorizonHours)
	e.metrics.resolveDuration.Observe(e.clock.Since(started).Seconds())
	return readings, forecasts
}

// ScheduleRequest describes a workload placement question.
type ScheduleRequest struct {
	Workload      string
	CurrentRegion string
	Duration      time.Duration
	Deadline      time.Time
	Portable      bool

	// Candidates restricts the relocation set. Empty means all
	// configured regions.
	Candidates []string

	// ScheduleWeight is the caller's urgency factor for ranking.
	ScheduleWeight float64

	// Now pins the evaluation instant for tests.
	Now time.Time
}

// ScheduleResponse is one complete decision with its audit trail.
type ScheduleResponse struct {
	ID       string             `json:"id"`
	Workload string             `json:"workload,omitempty"`
	Decision optimizer.Decision `json:"decision"`

	// Degraded is set when the current region's reading came from the
	// static fallback rather than a live source.
	Degraded bool `json:"degraded,omitempty"`

	// PolicyRule names the rule that altered the decision, if any.
	PolicyRule string `json:"policy_rule,omitempty"`

	Ranked []RankedRegion `json:"ranked,omitempty"`
}

// Schedule resolves the candidate set, ranks it, runs the optimizer,
// and applies the decision policy.
func (e *Engine) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResponse, error) {
	if req.CurrentRegion == "" {
		return ScheduleResponse{}, fmt.Errorf("current region is required")
	}

	regions := req.Candidates
	if len(regions) == 0 {
		for _, p := range e.cfg.Regions {
			regions = append(regions, p.Code)
		}
	}
	if !contains(regions, req.CurrentRegion) {
		regions = append(regions, req.CurrentRegion)
	}

	readings, forecasts := e.resolveBatch(ctx, regions)

	candidates := make([]optimizer.Candidate, 0, len(regions))
	inputs := make([]ranker.Input, 0, len(regions))
	for _, code := range regions {
		candidates = append(candidates, optimizer.Candidate{
			Region:   code,
			Current:  readings[code],
			Forecast: forecasts[code],
		})
		if profile, ok := e.cfg.Profile(code); ok {
			inputs = append(inputs, ranker.Input{
				Profile:  profile,
				Current:  readings[code],
				Forecast: forecasts[code],
			})
		}
	}

	now := req.Now
	if now.IsZero() {
		now = e.clock.Now()
	}
	now = now.UTC()

	decision, err := e.opt.Optimize(optimizer.Request{
		Candidates:    candidates,
		CurrentRegion: req.CurrentRegion,
		Duration:      req.Duration,
		Deadline:      req.Deadline,
		Portable:      req.Portable,
		Now:           now,
	})
	if err != nil {
		return ScheduleResponse{}, err
	}

	resp := ScheduleResponse{
		ID:       uuid.NewString(),
		Workload: req.Workload,
		Decision: decision,
		Degraded: !readings[req.CurrentRegion].Realtime,
	}
	for _, s := range ranker.Rank(inputs, ranker.FromConfig(e.cfg.Engine.RankWeights), req.ScheduleWeight) {
		r := readings[s.Region]
		resp.Ranked = append(resp.Ranked, RankedRegion{
			Score:     s,
			Intensity: r,
			Band:      carbon.IntensityBand(r.Value),
		})
	}

	if e.policies != nil {
		resp, err = e.applyPolicy(ctx, resp, req, candidates, now)
		if err != nil {
			return ScheduleResponse{}, err
		}
	}

	e.metrics.decisionsTotal.WithLabelValues(string(resp.Decision.Kind)).Inc()
	e.logger.Info("schedule decision",
		"id", resp.ID,
		"workload", req.Workload,
		"kind", string(resp.Decision.Kind),
		"region", resp.Decision.Region,
		"start_at", resp.Decision.StartAt,
		"savings_percent", resp.Decision.SavingsPercent,
		"degraded", resp.Degraded,
	)
	return resp, nil
}

// applyPolicy lets operator rules veto or force the optimizer's
// decision. A forbidden relocation is re-optimized with portability
// off so a deferral in the home region can still win.
func (e *Engine) applyPolicy(ctx context.Context, resp ScheduleResponse, req ScheduleRequest, candidates []optimizer.Candidate, now time.Time) (ScheduleResponse, error) {
	verdict, err := e.policies.Evaluate(ctx, resp.Decision, req.CurrentRegion, req.Portable)
	if err != nil {
		return resp, err
	}

	switch verdict.Action {
	case policy.ActionForceRunNow:
		resp.Decision = e.forcedRunNow(ctx, req, now, verdict.MatchedRule)
		resp.PolicyRule = verdict.MatchedRule

	case policy.ActionForbidRelocate:
		if resp.Decision.Kind != optimizer.KindRelocate {
			return resp, nil
		}
		decision, err := e.opt.Optimize(optimizer.Request{
			Candidates:    candidates,
			CurrentRegion: req.CurrentRegion,
			Duration:      req.Duration,
			Deadline:      req.Deadline,
			Portable:      false,
			Now:           now,
		})
		if err != nil {
			return resp, err
		}
		resp.Decision = decision
		resp.PolicyRule = verdict.MatchedRule

	case policy.ActionForbidDefer:
		if resp.Decision.Kind != optimizer.KindDefer {
			return resp, nil
		}
		resp.Decision = e.forcedRunNow(ctx, req, now, verdict.MatchedRule)
		resp.PolicyRule = verdict.MatchedRule
	}

	return resp, nil
}

func (e *Engine) forcedRunNow(ctx context.Context, req ScheduleRequest, now time.Time, rule string) optimizer.Decision {
	reading := e.resolver.Resolve(ctx, req.CurrentRegion)
	return optimizer.Decision{
		Kind:              optimizer.KindRunNow,
		Region:            req.CurrentRegion,
		StartAt:           now,
		ExpectedIntensity: reading.Value,
		SavingsPercent:    0,
		Reason:            fmt.Sprintf("policy rule %q requires an immediate start", rule),
	}
}

// EvaluationReport is the outcome of one measurement evaluation.
type EvaluationReport struct {
	Result   regression.Result   `json:"result"`
	Baseline regression.Baseline `json:"baseline"`

	// BaselineUpdated is set when the measurement was folded into the
	// rolling baseline (severity NONE, including the seeding sample).
	BaselineUpdated bool `json:"baseline_updated"`

	// CO2Grams and Equivalents are filled when the caller supplies a
	// grid intensity for the run.
	CO2Grams    float64             `json:"co2_grams,omitempty"`
	Equivalents *carbon.Equivalents `json:"equivalents,omitempty"`
}

// EvaluateMeasurement validates a measurement, scores it against the
// rolling baseline under the per-key write lock, and persists it.
// intensityGPerKWh, when positive, adds CO2 figures to the report.
func (e *Engine) EvaluateMeasurement(ctx context.Context, m regression.Measurement, intensityGPerKWh float64) (EvaluationReport, error) {
	if err := m.Validate(); err != nil {
		return EvaluationReport{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = e.clock.Now().UTC()
	}

	var report EvaluationReport
	baseline, err := e.store.UpdateBaseline(ctx, m.Branch, m.Workload, func(b regression.Baseline) (regression.Baseline, error) {
		result, err := e.detector.Evaluate(m, b)
		if err != nil {
			return b, err
		}
		report.Result = result
		if result.Severity == regression.SeverityNone {
			report.BaselineUpdated = true
			return b.Accept(m.TotalJoules, e.cfg.Engine.BaselineWindow, e.clock.Now()), nil
		}
		return b, nil
	})
	if err != nil {
		return EvaluationReport{}, err
	}
	report.Baseline = baseline

	if err := e.store.AppendMeasurement(ctx, m); err != nil {
		return EvaluationReport{}, err
	}

	if intensityGPerKWh > 0 {
		grams := carbon.ToGrams(m.TotalJoules, intensityGPerKWh)
		eq := carbon.ToEquivalents(grams)
		report.CO2Grams = grams
		report.Equivalents = &eq
	}

	e.metrics.regressionsTotal.WithLabelValues(string(report.Result.Severity)).Inc()

	if report.Result.Severity == regression.SeverityMajor || report.Result.Severity == regression.SeverityCritical {
		event := notify.Event{
			Type:     "regression",
			Severity: string(report.Result.Severity),
			Branch:   m.Branch,
			Workload: m.Workload,
			Message: fmt.Sprintf("workload %s on %s used %.0f%% more energy than its baseline",
				m.Workload, m.Branch, report.Result.DeltaPercent),
			Timestamp: e.clock.Now().UTC(),
		}
		if err := e.notifier.Notify(ctx, event); err != nil {
			e.logger.Warn("notification failed", "error", err)
		}
	}

	return report, nil
}

// Baseline returns the stored baseline for a key.
func (e *Engine) Baseline(ctx context.Context, branch, workload string) (regression.Baseline, error) {
	return e.store.LoadBaseline(ctx, branch, workload)
}

// Measurements lists recent measurements for a key, newest first.
func (e *Engine) Measurements(ctx context.Context, branch, workload string, limit int) ([]regression.Measurement, error) {
	return e.store.ListMeasurements(ctx, branch, workload, limit)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
