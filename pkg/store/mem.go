package store

import (
	"context"
	"sort"
	"sync"

	"github.com/VerdantProject/verdant/pkg/regression"
)

// MemStore is an in-memory Store for tests and single-process runs.
type MemStore struct {
	mu           sync.Mutex
	baselines    map[string]regression.Baseline
	measurements map[string][]regression.Measurement
	keyLocks     map[string]*sync.Mutex
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		baselines:    make(map[string]regression.Baseline),
		measurements: make(map[string][]regression.Measurement),
		keyLocks:     make(map[string]*sync.Mutex),
	}
}

func key(branch, workload string) string {
	return branch + "\x00" + workload
}

func (s *MemStore) LoadBaseline(_ context.Context, branch, workload string) (regression.Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[key(branch, workload)]
	if !ok {
		return regression.Baseline{}, ErrNotFound
	}
	return b, nil
}

func (s *MemStore) SaveBaseline(_ context.Context, b regression.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[key(b.Branch, b.Workload)] = b
	return nil
}

// UpdateBaseline serializes writers per key while leaving other keys
// free to proceed.
func (s *MemStore) UpdateBaseline(ctx context.Context, branch, workload string, fn func(regression.Baseline) (regression.Baseline, error)) (regression.Baseline, error) {
	lock := s.lockFor(branch, workload)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return regression.Baseline{}, err
	}

	s.mu.Lock()
	current := s.baselines[key(branch, workload)]
	s.mu.Unlock()

	next, err := fn(current)
	if err != nil {
		return regression.Baseline{}, err
	}
	next.Branch = branch
	next.Workload = workload

	s.mu.Lock()
	s.baselines[key(branch, workload)] = next
	s.mu.Unlock()
	return next, nil
}

func (s *MemStore) lockFor(branch, workload string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(branch, workload)
	lock, ok := s.keyLocks[k]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[k] = lock
	}
	return lock
}

func (s *MemStore) AppendMeasurement(_ context.Context, m regression.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(m.Branch, m.Workload)
	s.measurements[k] = append(s.measurements[k], m)
	return nil
}

func (s *MemStore) ListMeasurements(_ context.Context, branch, workload string, limit int) ([]regression.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.measurements[key(branch, workload)]
	out := make([]regression.Measurement, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Migrate(context.Context) error { return nil }

func (s *MemStore) Close() error { return nil }
