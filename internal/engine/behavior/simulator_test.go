package behavior

import (
	"testing"
	"time"
)

func testRanges() map[ActionKind]Range {
	return map[ActionKind]Range{
		ActionMouseMove:  {Min: 50 * time.Millisecond, Max: 300 * time.Millisecond, Distribution: DistNormal},
		ActionKeystroke:  {Min: 60 * time.Millisecond, Max: 250 * time.Millisecond, Distribution: DistUniform},
		ActionScroll:     {Min: 200 * time.Millisecond, Max: 900 * time.Millisecond, Distribution: DistExponential},
		ActionClick:      {Min: 100 * time.Millisecond, Max: 100 * time.Millisecond, Distribution: DistUniform},
		ActionFormSubmit: {Min: 400 * time.Millisecond, Max: 2 * time.Second, Distribution: "bogus"},
	}
}

func TestDelaysStayWithinConfiguredRange(t *testing.T) {
	s := New(testRanges())

	kinds := []ActionKind{ActionMouseMove, ActionKeystroke, ActionScroll, ActionFormSubmit}
	for _, kind := range kinds {
		r := testRanges()[kind]
		for i := 0; i < 1000; i++ {
			d := s.DelayBefore(kind)
			if d < r.Min || d > r.Max {
				t.Fatalf("%s delay %v outside [%v, %v]", kind, d, r.Min, r.Max)
			}
		}
	}
}

func TestDegenerateRangeReturnsMin(t *testing.T) {
	s := New(testRanges())
	for i := 0; i < 10; i++ {
		if d := s.DelayBefore(ActionClick); d != 100*time.Millisecond {
			t.Fatalf("DelayBefore() = %v, want the fixed 100ms", d)
		}
	}
}

func TestUnconfiguredKindHasNoDelay(t *testing.T) {
	s := New(testRanges())
	if d := s.DelayBefore(ActionKind("page_load")); d != 0 {
		t.Errorf("DelayBefore(unconfigured) = %v, want 0", d)
	}
}

func TestDelaysAreNotConstant(t *testing.T) {
	s := New(testRanges())

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 200; i++ {
		seen[s.DelayBefore(ActionKeystroke)] = struct{}{}
	}
	if len(seen) < 10 {
		t.Errorf("only %d distinct delays over 200 draws, jitter looks broken", len(seen))
	}
}

func TestInvertedRangeNormalized(t *testing.T) {
	s := New(map[ActionKind]Range{
		ActionClick: {Min: 500 * time.Millisecond, Max: 100 * time.Millisecond},
	})
	if d := s.DelayBefore(ActionClick); d != 500*time.Millisecond {
		t.Errorf("DelayBefore() = %v, want the normalized 500ms", d)
	}
}
