package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a deterministic clock for tests. Time only moves when Advance
// or SetNow is called; timers registered via After fire when the clock
// passes their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the duration since t at the current fake time.
func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Sleep blocks until the clock advances past the wake time.
func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// After returns a channel that receives once the clock passes now+d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d, firing any expired waiters in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.SetNow(f.Now().Add(d))
}

// SetNow moves the clock to t. Moving backwards is ignored.
func (f *Fake) SetNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.Before(f.now) {
		return
	}
	f.now = t

	sort.Slice(f.waiters, func(i, j int) bool {
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})

	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if w.deadline.After(t) {
			remaining = append(remaining, w)
			continue
		}
		w.ch <- w.deadline
	}
	f.waiters = remaining
}

// PendingWaiters returns the number of unexpired After callers.
func (f *Fake) PendingWaiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}
