package engine

import (
	"context"
	"testing"
	"time"
)

func TestGovernorHourlyBudget(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGovernor(5*time.Second, 3)
	g.nowFn = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !g.Reserve() {
			t.Fatalf("call %d refused before budget", i)
		}
		g.MarkCall()
		now = now.Add(time.Minute)
	}
	if g.Reserve() {
		t.Error("budget exhausted but Reserve succeeded")
	}

	// Rolling reset: the counter clears once the last call ages out, not
	// on the wall-clock hour.
	now = now.Add(59 * time.Minute)
	if g.Reserve() {
		t.Error("window should still be held open by the last call")
	}
	now = now.Add(2 * time.Minute)
	if !g.Reserve() {
		t.Error("window should have reset after an idle hour")
	}
	stats := g.Stats()
	if stats.CallsThisHour != 1 {
		t.Errorf("calls after reset = %d, want 1 (the fresh reserve)", stats.CallsThisHour)
	}
}

func TestGovernorWaitEnforcesMinInterval(t *testing.T) {
	g := NewGovernor(50*time.Millisecond, 100)

	// No prior call: no wait.
	start := time.Now()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Error("first wait should return immediately")
	}

	g.MarkCall()
	start = time.Now()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Errorf("waited %v, want ~50ms", waited)
	}
}

func TestGovernorWaitHonorsContext(t *testing.T) {
	g := NewGovernor(time.Hour, 100)
	g.MarkCall()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Error("expected context error from interrupted wait")
	}
}
