package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/VerdantProject/verdant/pkg/clock"
	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/intensity/fake"
	"github.com/VerdantProject/verdant/pkg/notify"
	"github.com/VerdantProject/verdant/pkg/optimizer"
	"github.com/VerdantProject/verdant/pkg/policy"
	"github.com/VerdantProject/verdant/pkg/regression"
	"github.com/VerdantProject/verdant/pkg/store"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Regions = []config.RegionProfile{
		{Region: "Frankfurt", Code: "de-fra", PUE: 1.4, RenewablePct: 30, StaticIntensity: 420},
		{Region: "Stockholm", Code: "se-sto", PUE: 1.1, RenewablePct: 95, StaticIntensity: 45},
	}
	return &cfg
}

func scripted() *fake.Source {
	src := fake.New("scripted", 1)
	src.SetCurrent("de-fra", intensity.Reading{Value: 400, Confidence: 0.9, ObservedAt: t0, Realtime: true})
	src.SetCurrent("se-sto", intensity.Reading{Value: 80, Confidence: 0.9, ObservedAt: t0, Realtime: true})
	for _, region := range []string{"de-fra", "se-sto"} {
		value := 400.0
		if region == "se-sto" {
			value = 80
		}
		var points []intensity.ForecastPoint
		for h := 0; h < 6; h++ {
			points = append(points, intensity.ForecastPoint{
				Region:     region,
				Timestamp:  t0.Add(time.Duration(h) * time.Hour),
				Value:      value,
				Confidence: 0.8,
			})
		}
		src.SetForecast(region, points)
	}
	return src
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock.NewFake(t0)),
	}
	return New(testConfig(), []intensity.Source{scripted()}, store.NewMemStore(), append(base, opts...)...)
}

func TestRankRegions(t *testing.T) {
	e := newTestEngine(t)

	ranked := e.RankRegions(context.Background(), nil, 1.0)
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d regions, want 2", len(ranked))
	}
	if ranked[0].Region != "se-sto" {
		t.Errorf("top pick = %s, want se-sto", ranked[0].Region)
	}
	if ranked[0].Intensity.Value != 80 {
		t.Errorf("top intensity = %v, want 80", ranked[0].Intensity.Value)
	}
	if ranked[0].Band != "low" {
		t.Errorf("top band = %s, want low", ranked[0].Band)
	}
}

func TestScheduleRelocates(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Schedule(context.Background(), ScheduleRequest{
		Workload:      "nightly-build",
		CurrentRegion: "de-fra",
		Duration:      time.Hour,
		Deadline:      t0.Add(4 * time.Hour),
		Portable:      true,
		Now:           t0,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if resp.Decision.Kind != optimizer.KindRelocate {
		t.Fatalf("kind = %s, want RELOCATE (%s)", resp.Decision.Kind, resp.Decision.Reason)
	}
	if resp.Decision.Region != "se-sto" {
		t.Errorf("region = %s, want se-sto", resp.Decision.Region)
	}
	if resp.ID == "" {
		t.Error("expected a decision id")
	}
	if resp.Degraded {
		t.Error("live readings should not be degraded")
	}
	if len(resp.Ranked) != 2 {
		t.Errorf("ranked = %d regions, want 2", len(resp.Ranked))
	}
}

func TestScheduleInfeasible(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Schedule(context.Background(), ScheduleRequest{
		CurrentRegion: "de-fra",
		Duration:      6 * time.Hour,
		Deadline:      t0.Add(time.Hour),
		Now:           t0,
	})
	if !errors.Is(err, optimizer.ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
}

func TestScheduleDegradedFallback(t *testing.T) {
	// No sources at all: every region degrades to its static profile.
	cfg := testConfig()
	e := New(cfg, nil, store.NewMemStore(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock.NewFake(t0)))

	resp, err := e.Schedule(context.Background(), ScheduleRequest{
		CurrentRegion: "se-sto",
		Duration:      time.Hour,
		Deadline:      t0.Add(2 * time.Hour),
		Now:           t0,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !resp.Degraded {
		t.Error("static fallback should mark the response degraded")
	}
	// Stockholm's static intensity sits in the low band.
	if resp.Decision.Kind != optimizer.KindRunNow {
		t.Errorf("kind = %s, want RUN_NOW", resp.Decision.Kind)
	}
}

func TestSchedulePolicyForbidsRelocation(t *testing.T) {
	p, err := policy.Parse([]byte(`
rules:
  - name: relocation-freeze
    condition: decision.kind == "RELOCATE"
    action: forbid_relocate
    priority: 10
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	ev, err := policy.NewEvaluator(p)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}

	e := newTestEngine(t, WithPolicy(ev))

	resp, err := e.Schedule(context.Background(), ScheduleRequest{
		CurrentRegion: "de-fra",
		Duration:      time.Hour,
		Deadline:      t0.Add(4 * time.Hour),
		Portable:      true,
		Now:           t0,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if resp.Decision.Kind == optimizer.KindRelocate {
		t.Fatalf("policy did not stop the relocation")
	}
	if resp.PolicyRule != "relocation-freeze" {
		t.Errorf("policy rule = %q, want relocation-freeze", resp.PolicyRule)
	}
	if resp.Decision.Region != "de-fra" {
		t.Errorf("region = %s, want de-fra", resp.Decision.Region)
	}
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(_ context.Context, e notify.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestEvaluateMeasurementLifecycle(t *testing.T) {
	notifier := &captureNotifier{}
	e := newTestEngine(t, WithNotifier(notifier))
	ctx := context.Background()

	m := regression.Measurement{
		Branch:      "main",
		Workload:    "integration-suite",
		TotalJoules: 5000,
	}

	// First measurement seeds the baseline.
	report, err := e.EvaluateMeasurement(ctx, m, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !report.Result.Seeded || !report.BaselineUpdated {
		t.Fatalf("first measurement should seed: %+v", report)
	}
	if report.Baseline.EnergyJoules != 5000 || report.Baseline.Samples != 1 {
		t.Fatalf("baseline = %+v", report.Baseline)
	}

	// 15% over baseline is MAJOR and must not move the baseline.
	m.TotalJoules = 5750
	report, err = e.EvaluateMeasurement(ctx, m, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Result.Severity != regression.SeverityMajor {
		t.Fatalf("severity = %s, want MAJOR", report.Result.Severity)
	}
	if report.BaselineUpdated {
		t.Error("a regression must not update the baseline")
	}
	if report.Baseline.EnergyJoules != 5000 {
		t.Errorf("baseline moved to %v", report.Baseline.EnergyJoules)
	}
	if len(notifier.events) != 1 || notifier.events[0].Severity != "MAJOR" {
		t.Errorf("notifications = %+v, want one MAJOR", notifier.events)
	}

	// Measurements are persisted either way.
	list, err := e.Measurements(ctx, "main", "integration-suite", 0)
	if err != nil {
		t.Fatalf("measurements: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("measurements = %d, want 2", len(list))
	}
}

func TestEvaluateMeasurementCO2(t *testing.T) {
	e := newTestEngine(t)

	report, err := e.EvaluateMeasurement(context.Background(), regression.Measurement{
		Branch:      "main",
		Workload:    "suite",
		TotalJoules: 12_500,
	}, 436)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.CO2Grams < 1.51 || report.CO2Grams > 1.52 {
		t.Errorf("co2 = %v g, want about 1.514", report.CO2Grams)
	}
	if report.Equivalents == nil || report.Equivalents.PhoneCharges <= 0 {
		t.Errorf("equivalents = %+v", report.Equivalents)
	}
}

func TestEvaluateMeasurementRejectsInvalid(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.EvaluateMeasurement(context.Background(), regression.Measurement{
		Branch:      "main",
		Workload:    "suite",
		TotalJoules: -5,
	}, 0)
	if !errors.Is(err, regression.ErrInvalidMeasurement) {
		t.Fatalf("err = %v, want ErrInvalidMeasurement", err)
	}

	// Nothing invalid may reach the store.
	if _, err := e.Baseline(context.Background(), "main", "suite"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("baseline err = %v, want ErrNotFound", err)
	}
}
