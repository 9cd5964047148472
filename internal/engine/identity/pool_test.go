package identity

import (
	"errors"
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

func newTestPool(clock *fakeClock, strategy Strategy, validate ValidateFunc) *Pool {
	return New("test", Config{
		Strategy:         strategy,
		FailureThreshold: 2,
		CoolDown:         time.Minute,
		MaxCoolDown:      8 * time.Minute,
		Validate:         validate,
		Now:              clock.Now,
	})
}

func proxyEntries(values ...string) []Entry {
	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		entries = append(entries, Entry{ID: v, Value: v})
	}
	return entries
}

func TestLoadReportsRejectedCounts(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, UserAgentValidator(20, 200, []string{"Mozilla/"}))

	res := p.Load([]Entry{
		{Value: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"},
		{Value: "too short"},
		{Value: "curl/8.0.1 with padding to clear the minimum length bound"},
		{Value: "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0"},
	})

	if res.Accepted != 2 || res.Rejected != 2 {
		t.Errorf("Load() = %+v, want 2 accepted / 2 rejected", res)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestRoundRobinCyclesActiveEntries(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a", "b", "c"))

	var got []string
	for i := 0; i < 6; i++ {
		e, err := p.Select()
		if err != nil {
			t.Fatalf("Select() error: %v", err)
		}
		got = append(got, e.Value)
	}
	want := []string{"b", "c", "a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", got, want)
		}
	}
}

func TestBlacklistedEntryNeverSelected(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a", "b"))

	p.ReportOutcome("a", false, true) // hard ban

	for i := 0; i < 5; i++ {
		e, err := p.Select()
		if err != nil {
			t.Fatalf("Select() returned %v with an active entry remaining", err)
		}
		if e.Value != "b" {
			t.Fatalf("Select() = %q, want the remaining active entry", e.Value)
		}
	}

	p.ReportOutcome("b", false, true)
	if _, err := p.Select(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Select() after banning all = %v, want ErrExhausted", err)
	}
}

func TestBlacklistSurvivesLoad(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a"))
	p.ReportOutcome("a", false, true)

	for i := 0; i < 3; i++ {
		p.Load(proxyEntries("a"))
		if _, err := p.Select(); !errors.Is(err, ErrExhausted) {
			t.Fatalf("banned value re-entered rotation after Load #%d", i+1)
		}
	}

	// Only an explicit fresh load re-includes the value.
	p.LoadFresh(proxyEntries("a"))
	if _, err := p.Select(); err != nil {
		t.Errorf("Select() after LoadFresh = %v, want success", err)
	}
}

func TestSoftFailuresCoolThenRevive(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a"))

	p.ReportOutcome("a", false, false)
	if _, err := p.Select(); err != nil {
		t.Fatal("one soft failure must not remove the entry")
	}
	p.ReportOutcome("a", false, false) // hits the threshold, cools for 1m

	if _, err := p.Select(); !errors.Is(err, ErrExhausted) {
		t.Fatal("cooling entry must be excluded from selection")
	}

	clock.Advance(61 * time.Second)
	e, err := p.Select()
	if err != nil {
		t.Fatalf("Select() after cool-down = %v, want revival", err)
	}
	if e.State != StateActive {
		t.Errorf("revived entry state = %v, want active", e.State)
	}
}

func TestCoolDownGrowsExponentially(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a"))

	p.ReportOutcome("a", false, false)
	p.ReportOutcome("a", false, false) // threshold: cools for 1m
	p.ReportOutcome("a", false, false) // one past: cools for 2m from now

	clock.Advance(90 * time.Second)
	if _, err := p.Select(); !errors.Is(err, ErrExhausted) {
		t.Error("entry revived before the doubled cool-down elapsed")
	}
	clock.Advance(31 * time.Second)
	if _, err := p.Select(); err != nil {
		t.Error("entry should revive after the doubled cool-down")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a"))

	p.ReportOutcome("a", false, false)
	p.ReportOutcome("a", true, false)
	e, ok := p.Get("a")
	if !ok {
		t.Fatal("entry missing")
	}
	if e.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 after success", e.FailureCount)
	}
}

func TestLeastUsedPrefersOldest(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyLeastUsed, nil)
	p.Load(proxyEntries("a", "b"))

	first, _ := p.Select()
	clock.Advance(time.Second)
	second, _ := p.Select()
	if first.Value == second.Value {
		t.Fatalf("least-used selected %q twice while %q was never used", first.Value, second.Value)
	}

	clock.Advance(time.Second)
	third, _ := p.Select()
	if third.Value != first.Value {
		t.Errorf("third selection = %q, want the least recently used %q", third.Value, first.Value)
	}
}

func TestSelectionUpdatesBookkeeping(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(clock, StrategyRoundRobin, nil)
	p.Load(proxyEntries("a"))

	p.Select()
	p.Select()
	e, _ := p.Get("a")
	if e.TotalUses != 2 {
		t.Errorf("TotalUses = %d, want 2", e.TotalUses)
	}
	if !e.LastUsed.Equal(clock.Now()) {
		t.Errorf("LastUsed = %v, want %v", e.LastUsed, clock.Now())
	}
}
