// Package store persists regression baselines and measurements. Both
// implementations guarantee that baseline updates for one
// (branch, workload) key are serialized, so concurrent evaluations
// cannot interleave their read-modify-write cycles.
package store

import (
	"context"
	"errors"

	"github.com/VerdantProject/verdant/pkg/regression"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface the engine depends on.
type Store interface {
	// LoadBaseline returns the baseline for a key, or ErrNotFound.
	LoadBaseline(ctx context.Context, branch, workload string) (regression.Baseline, error)

	// SaveBaseline writes a baseline unconditionally.
	SaveBaseline(ctx context.Context, b regression.Baseline) error

	// UpdateBaseline runs fn inside a per-key critical section. fn
	// receives the current baseline (zero-valued when none exists) and
	// returns the replacement; returning an error aborts without
	// writing.
	UpdateBaseline(ctx context.Context, branch, workload string, fn func(regression.Baseline) (regression.Baseline, error)) (regression.Baseline, error)

	// AppendMeasurement records a measurement for later inspection.
	AppendMeasurement(ctx context.Context, m regression.Measurement) error

	// ListMeasurements returns up to limit measurements for a key,
	// newest first. limit <= 0 means no limit.
	ListMeasurements(ctx context.Context, branch, workload string, limit int) ([]regression.Measurement, error)

	// Migrate prepares the backing schema. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	Close() error
}
