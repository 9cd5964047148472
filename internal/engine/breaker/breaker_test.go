package breaker

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGroup(clock *fakeClock) *Group {
	return NewGroup(Config{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		MaxBackoff:       240 * time.Second,
		Now:              clock.Now,
	})
}

const scope = "domain:example.com"

func tripBreaker(t *testing.T, g *Group) {
	t.Helper()
	for i := 0; i < 3; i++ {
		g.RecordOutcome(scope, false, false)
	}
	if g.StateOf(scope) != StateOpen {
		t.Fatal("breaker should be open after threshold failures")
	}
}

func TestTripAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)

	g.RecordOutcome(scope, false, false)
	g.RecordOutcome(scope, false, false)
	if ok, _, _ := g.Allow(scope); !ok {
		t.Fatal("breaker should stay closed below the threshold")
	}
	// A success in between resets the streak.
	g.RecordOutcome(scope, true, false)
	g.RecordOutcome(scope, false, false)
	g.RecordOutcome(scope, false, false)
	if g.StateOf(scope) != StateClosed {
		t.Fatal("streak should have been reset by the success")
	}

	g.RecordOutcome(scope, false, false)
	ok, _, retryAfter := g.Allow(scope)
	if ok {
		t.Fatal("breaker should be open")
	}
	if retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", retryAfter)
	}
}

func TestHalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)

	ok, probe, _ := g.Allow(scope)
	if !ok || !probe {
		t.Fatalf("Allow() = (%v, %v), want the half-open probe", ok, probe)
	}
	if ok, _, _ := g.Allow(scope); ok {
		t.Error("second call during half-open must be denied while the probe is in flight")
	}
}

func TestProbeSuccessClosesBreaker(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)
	if ok, _, _ := g.Allow(scope); !ok {
		t.Fatal("probe should be admitted")
	}
	g.RecordOutcome(scope, true, true)

	if g.StateOf(scope) != StateClosed {
		t.Fatal("breaker should be closed after probe success")
	}
	// The failure count was reset: it takes the full threshold to trip again.
	g.RecordOutcome(scope, false, false)
	g.RecordOutcome(scope, false, false)
	if g.StateOf(scope) != StateClosed {
		t.Error("breaker tripped early, failure count was not reset")
	}
}

func TestProbeFailureReopensWithDoubledBackoff(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)
	if ok, _, _ := g.Allow(scope); !ok {
		t.Fatal("probe should be admitted")
	}
	g.RecordOutcome(scope, false, true)

	ok, _, retryAfter := g.Allow(scope)
	if ok {
		t.Fatal("breaker should be open after probe failure")
	}
	if retryAfter != 60*time.Second {
		t.Errorf("retryAfter = %v, want the doubled 60s", retryAfter)
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	// Fail every probe; the applied cool-down doubles per trip up to the cap.
	wants := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 240 * time.Second}
	for _, want := range wants {
		clock.Advance(10 * time.Minute)
		if ok, _, _ := g.Allow(scope); !ok {
			t.Fatal("probe should be admitted after the cool-down")
		}
		g.RecordOutcome(scope, false, true)
		if ok, _, got := g.Allow(scope); ok || got != want {
			t.Fatalf("after failed probe: Allow() = (%v, %v), want denial for %v", ok, got, want)
		}
	}
}

func TestSustainedSuccessHalvesBackoff(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)
	g.Allow(scope)
	g.RecordOutcome(scope, true, true) // closed; next trip would use 60s

	// A sustained success streak halves the pending timeout back to the base.
	g.RecordOutcome(scope, true, false)
	g.RecordOutcome(scope, true, false)

	tripBreaker(t, g)
	if ok, _, retryAfter := g.Allow(scope); ok || retryAfter != 30*time.Second {
		t.Errorf("Allow() after re-trip = (%v, %v), want denial for the base 30s", ok, retryAfter)
	}
}

func TestNeutralHandsProbeBack(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)
	ok, probe, _ := g.Allow(scope)
	if !ok || !probe {
		t.Fatal("probe should be admitted")
	}
	g.RecordNeutral(scope, true)

	ok, probe, _ = g.Allow(scope)
	if !ok || !probe {
		t.Error("a cancelled probe must become available to the next caller")
	}
}

func TestLateOutcomeDoesNotDecideProbe(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	clock.Advance(31 * time.Second)
	if ok, _, _ := g.Allow(scope); !ok {
		t.Fatal("probe should be admitted")
	}

	// A success from a request granted before the trip arrives late; it must
	// not close the breaker in place of the probe's own outcome.
	g.RecordOutcome(scope, true, false)
	if g.StateOf(scope) != StateHalfOpen {
		t.Fatal("late outcome must not decide the half-open transition")
	}

	g.RecordOutcome(scope, false, true)
	if g.StateOf(scope) != StateOpen {
		t.Error("probe failure should reopen the breaker")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	g := newTestGroup(clock)
	tripBreaker(t, g)

	if ok, _, _ := g.Allow("domain:other.com"); !ok {
		t.Error("an unrelated scope must not be affected by the trip")
	}
}
