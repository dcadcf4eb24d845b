// Package resolver merges independently failing intensity sources into
// one authoritative signal per region.
//
// Sources are consulted in priority order; the first live reading with
// positive confidence wins. The static table source sits at the end of
// every chain, so exhaustion of the live sources yields the region
// profile's fallback reading with zero confidence instead of an error:
// absence of live data is a valid, explicit result.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/VerdantProject/verdant/pkg/clock"
	"github.com/VerdantProject/verdant/pkg/config"
	"github.com/VerdantProject/verdant/pkg/intensity"
	"github.com/VerdantProject/verdant/pkg/intensity/static"
)

const (
	defaultResolveTimeout = 4 * time.Second
	defaultBatchTimeout   = 10 * time.Second
)

// Resolver reconciles a set of intensity sources per region.
type Resolver struct {
	sources        []intensity.Source
	terminal       intensity.Source
	resolveTimeout time.Duration
	batchTimeout   time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	fallbackHook   func(region string)
}

// Option configures optional Resolver behavior.
type Option func(*Resolver)

// WithTimeouts overrides the per-source and batch timeouts.
func WithTimeouts(perSource, batch time.Duration) Option {
	return func(r *Resolver) {
		if perSource > 0 {
			r.resolveTimeout = perSource
		}
		if batch > 0 {
			r.batchTimeout = batch
		}
	}
}

// WithClock overrides the clock (used in tests).
func WithClock(clk clock.Clock) Option {
	return func(r *Resolver) { r.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger.With("component", "resolver") }
}

// WithFallbackHook registers a callback invoked whenever a region
// degrades to its static fallback.
func WithFallbackHook(fn func(region string)) Option {
	return func(r *Resolver) { r.fallbackHook = fn }
}

// New creates a Resolver over the given sources and region profiles.
// The profiles back a terminal static source appended to the chain, so
// every covered region has at least one answering source.
func New(sources []intensity.Source, profiles []config.RegionProfile, opts ...Option) *Resolver {
	r := &Resolver{
		resolveTimeout: defaultResolveTimeout,
		batchTimeout:   defaultBatchTimeout,
		clock:          clock.Real(),
		logger:         slog.Default().With("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.terminal = static.New(profiles, static.WithNow(func() time.Time { return r.clock.Now() }))
	r.sources = append(append([]intensity.Source{}, sources...), r.terminal)
	return r
}

// Resolve returns the authoritative current reading for a region.
// It never returns an error: exhaustion of all sources yields the static
// fallback reading with zero confidence and Realtime=false.
func (r *Resolver) Resolve(ctx context.Context, region string) intensity.Reading {
	for _, src := range r.candidates(region) {
		callCtx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
		reading, err := src.Current(callCtx, region)
		cancel()

		if err != nil {
			r.logger.Debug("source failed",
				slog.String("source", src.Name()),
				slog.String("region", region),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := reading.Validate(); err != nil {
			r.logger.Warn("source returned invalid reading",
				slog.String("source", src.Name()),
				slog.String("region", region),
				slog.String("error", err.Error()),
			)
			continue
		}
		// A live answer must say so on both axes. Degraded readings are
		// only accepted from the terminal static source, after every
		// live source above it has had its turn.
		if reading.Confidence <= 0 || !reading.Realtime {
			if src == r.terminal {
				if r.fallbackHook != nil {
					r.fallbackHook(region)
				}
				return reading
			}
			continue
		}
		return reading
	}

	return r.fallback(region)
}

// ResolveAll resolves a batch of regions concurrently. Each region gets
// its own timeout; the whole batch is bounded by the batch timeout. Late
// or failed regions are reported with fallback readings, never dropped:
// the result always has exactly one entry per requested region.
func (r *Resolver) ResolveAll(ctx context.Context, regions []string) map[string]intensity.Reading {
	ctx, cancel := context.WithTimeout(ctx, r.batchTimeout)
	defer cancel()

	type resolution struct {
		region  string
		reading intensity.Reading
	}

	ch := make(chan resolution, len(regions))
	for _, region := range regions {
		go func(region string) {
			ch <- resolution{region: region, reading: r.Resolve(ctx, region)}
		}(region)
	}

	out := make(map[string]intensity.Reading, len(regions))
collect:
	for i := 0; i < len(regions); i++ {
		select {
		case res := <-ch:
			out[res.region] = res.reading
		case <-ctx.Done():
			// Pending resolutions are abandoned, not awaited.
			break collect
		}
	}

	for _, region := range regions {
		if _, ok := out[region]; !ok {
			r.logger.Warn("batch timeout, using fallback", slog.String("region", region))
			out[region] = r.fallback(region)
		}
	}
	return out
}

// ForecastFor returns the highest-priority non-empty forecast series for
// a region, normalized to UTC order. An empty result is valid: it means
// no source can see that far for that region.
func (r *Resolver) ForecastFor(ctx context.Context, region string, horizonHours int) []intensity.ForecastPoint {
	for _, src := range r.candidates(region) {
		callCtx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
		points, err := src.Forecast(callCtx, region, horizonHours)
		cancel()

		if err != nil {
			r.logger.Debug("forecast source failed",
				slog.String("source", src.Name()),
				slog.String("region", region),
				slog.String("error", err.Error()),
			)
			continue
		}
		points = intensity.NormalizeForecast(points)
		if len(points) > 0 {
			return points
		}
	}
	return nil
}

// ForecastAll fans out forecast resolution for a batch of regions.
// Regions without coverage map to a nil series.
func (r *Resolver) ForecastAll(ctx context.Context, regions []string, horizonHours int) map[string][]intensity.ForecastPoint {
	ctx, cancel := context.WithTimeout(ctx, r.batchTimeout)
	defer cancel()

	type result struct {
		region string
		points []intensity.ForecastPoint
	}

	ch := make(chan result, len(regions))
	for _, region := range regions {
		go func(region string) {
			ch <- result{region: region, points: r.ForecastFor(ctx, region, horizonHours)}
		}(region)
	}

	out := make(map[string][]intensity.ForecastPoint, len(regions))
collect:
	for i := 0; i < len(regions); i++ {
		select {
		case res := <-ch:
			out[res.region] = res.points
		case <-ctx.Done():
			break collect
		}
	}

	for _, region := range regions {
		if _, ok := out[region]; !ok {
			out[region] = nil
		}
	}
	return out
}

// candidates returns the sources covering a region in priority order,
// ties broken by source name for determinism.
func (r *Resolver) candidates(region string) []intensity.Source {
	covering := make([]intensity.Source, 0, len(r.sources))
	for _, src := range r.sources {
		if src.Covers(region) {
			covering = append(covering, src)
		}
	}
	sort.SliceStable(covering, func(i, j int) bool {
		pi, pj := covering[i].Priority(region), covering[j].Priority(region)
		if pi != pj {
			return pi < pj
		}
		return covering[i].Name() < covering[j].Name()
	})
	return covering
}

// fallback builds the degraded reading for a region the source walk
// never answered: abandoned batch stragglers, or regions not even the
// static table covers.
func (r *Resolver) fallback(region string) intensity.Reading {
	if r.fallbackHook != nil {
		r.fallbackHook(region)
	}
	if reading, err := r.terminal.Current(context.Background(), region); err == nil {
		return reading
	}
	return static.Reading(config.RegionProfile{Code: region}, r.clock.Now())
}
