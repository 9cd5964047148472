package behavior

import (
	"math"
	"math/rand"
	"time"
)

// ActionKind names the caller-side actions the simulator paces.
type ActionKind string

const (
	ActionMouseMove  ActionKind = "mouse_move"
	ActionKeystroke  ActionKind = "keystroke"
	ActionScroll     ActionKind = "scroll"
	ActionClick      ActionKind = "click"
	ActionFormSubmit ActionKind = "form_submit"
)

// Distribution shapes how delays are drawn inside the configured range.
// Anything other than uniform breaks the telltale flat-latency signature of
// automated traffic.
type Distribution string

const (
	DistUniform     Distribution = "uniform"
	DistNormal      Distribution = "normal"
	DistExponential Distribution = "exponential"
)

// Range is the delay window for one action kind.
type Range struct {
	Min          time.Duration
	Max          time.Duration
	Distribution Distribution
}

// Simulator draws human-plausible delays per action kind. It is a pure
// function of its configuration and the shared random source, holds no
// mutable state, and needs no synchronization.
type Simulator struct {
	ranges map[ActionKind]Range
}

// New creates a Simulator. Ranges with Max < Min are normalized; unknown
// distributions fall back to uniform.
func New(ranges map[ActionKind]Range) *Simulator {
	normalized := make(map[ActionKind]Range, len(ranges))
	for kind, r := range ranges {
		if r.Min < 0 {
			r.Min = 0
		}
		if r.Max < r.Min {
			r.Max = r.Min
		}
		switch r.Distribution {
		case DistUniform, DistNormal, DistExponential:
		default:
			r.Distribution = DistUniform
		}
		normalized[kind] = r
	}
	return &Simulator{ranges: normalized}
}

// DelayBefore returns the pause to insert before the given action. Kinds
// without a configured range get no delay.
func (s *Simulator) DelayBefore(kind ActionKind) time.Duration {
	r, ok := s.ranges[kind]
	if !ok {
		return 0
	}
	span := float64(r.Max - r.Min)
	if span <= 0 {
		return r.Min
	}

	var f float64
	switch r.Distribution {
	case DistNormal:
		// Centered on the range midpoint; 3 sigma spans half the range.
		f = 0.5 + rand.NormFloat64()/6
	case DistExponential:
		// Most delays hug the minimum, with a long plausible tail.
		f = rand.ExpFloat64() / 3
	default:
		f = rand.Float64()
	}
	f = math.Min(math.Max(f, 0), 1)

	return r.Min + time.Duration(f*span)
}
