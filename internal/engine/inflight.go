package engine

import (
	"sync"
	"time"
)

// inflight tracks which campgrounds this process is currently polling.
// The database claim flag guards against other processes; this set guards
// against the scheduler re-dispatching a campground between the claim and
// the worker's first write.
type inflight struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newInflight() *inflight {
	return &inflight{entries: map[string]time.Time{}}
}

// TryClaim marks the campground in flight. Returns false if it already is.
func (f *inflight) TryClaim(campgroundID string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[campgroundID]; ok {
		return false
	}
	f.entries[campgroundID] = now
	return true
}

func (f *inflight) Release(campgroundID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, campgroundID)
}

// SweepOlderThan drops entries claimed before the cutoff and returns how
// many. A worker that leaked its entry would otherwise block its
// campground forever.
func (f *inflight) SweepOlderThan(cutoff time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, at := range f.entries {
		if at.Before(cutoff) {
			delete(f.entries, id)
			n++
		}
	}
	return n
}

func (f *inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
