package engine

import (
	"context"
	"sync"
	"time"

	"github.com/campwatch/campwatch/internal/metrics"
)

// Governor rate-limits upstream API calls across every worker: a minimum
// gap between consecutive calls plus a rolling hourly budget. The hour
// counter resets when the last call is more than an hour old, not on the
// wall-clock hour.
type Governor struct {
	mu          sync.Mutex
	minInterval time.Duration
	maxPerHour  int
	lastCall    time.Time
	windowStart time.Time
	calls       int

	nowFn func() time.Time
}

// GovernorStats is a point-in-time view, exposed on the status endpoint.
type GovernorStats struct {
	CallsThisHour int           `json:"calls_this_hour"`
	MaxPerHour    int           `json:"max_per_hour"`
	LastCall      time.Time     `json:"last_call"`
	MinInterval   time.Duration `json:"-"`
}

func NewGovernor(minInterval time.Duration, maxPerHour int) *Governor {
	return &Governor{
		minInterval: minInterval,
		maxPerHour:  maxPerHour,
		nowFn:       time.Now,
	}
}

// Reserve takes one slot of the hourly budget, reporting false when the
// budget is spent. Reserving at dispatch rather than at call time keeps
// concurrent workers from overshooting. It does not consider the minimum
// interval; that is a wait, not a refusal.
func (g *Governor) Reserve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()
	g.maybeReset(now)
	if g.calls >= g.maxPerHour {
		return false
	}
	if g.calls == 0 {
		g.windowStart = now
	}
	g.calls++
	return true
}

// Wait blocks until the minimum interval since the last call has elapsed,
// or the context ends.
func (g *Governor) Wait(ctx context.Context) error {
	g.mu.Lock()
	var sleep time.Duration
	if !g.lastCall.IsZero() {
		if since := g.nowFn().Sub(g.lastCall); since < g.minInterval {
			sleep = g.minInterval - since
		}
	}
	g.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	metrics.IncRateLimitWait()
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MarkCall stamps the time of an API call for the minimum-interval gate.
// The budget slot was already taken by Reserve.
func (g *Governor) MarkCall() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCall = g.nowFn()
}

// maybeReset starts a fresh window when the previous one has gone quiet
// for over an hour. Callers hold g.mu.
func (g *Governor) maybeReset(now time.Time) {
	last := g.lastCall
	if g.windowStart.After(last) {
		last = g.windowStart
	}
	if !last.IsZero() && now.Sub(last) > time.Hour {
		g.calls = 0
		g.windowStart = time.Time{}
	}
}

func (g *Governor) Stats() GovernorStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeReset(g.nowFn())
	return GovernorStats{
		CallsThisHour: g.calls,
		MaxPerHour:    g.maxPerHour,
		LastCall:      g.lastCall,
		MinInterval:   g.minInterval,
	}
}
