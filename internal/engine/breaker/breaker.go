package breaker

import (
	"sync"
	"time"

	"stealthgate/internal/shared/logger"
)

// State is the lifecycle state of one scope's breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes every breaker in a Group. The reset timeout doubles on
// repeated trips up to MaxBackoff and halves back toward ResetTimeout after
// FailureThreshold consecutive successes.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MaxBackoff       time.Duration
	Now              func() time.Time
}

// Group tracks one circuit breaker per scope key, created lazily. Each
// breaker carries its own lock so scopes never contend with each other.
type Group struct {
	cfg Config
	now func() time.Time

	mu     sync.RWMutex
	scopes map[string]*scopeBreaker
}

type scopeBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	successStreak int
	timeout       time.Duration // applied on the next trip
	openUntil     time.Time
	probeInFlight bool
}

// NewGroup creates a breaker group.
func NewGroup(cfg Config) *Group {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.ResetTimeout {
		cfg.MaxBackoff = cfg.ResetTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Group{
		cfg:    cfg,
		now:    now,
		scopes: make(map[string]*scopeBreaker),
	}
}

func (g *Group) breakerFor(scope string) *scopeBreaker {
	g.mu.RLock()
	sb, ok := g.scopes[scope]
	g.mu.RUnlock()
	if ok {
		return sb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if sb, ok = g.scopes[scope]; ok {
		return sb
	}
	sb = &scopeBreaker{timeout: g.cfg.ResetTimeout}
	g.scopes[scope] = sb
	return sb
}

// Allow reports whether a request for the scope may proceed. While open it
// denies with the remaining cool-down, except the single call that arrives
// after openUntil has elapsed: that one flips the breaker to half-open, is
// let through as the probe, and its outcome alone decides the next
// transition. probe is true for exactly that call; callers that end up not
// sending the request must hand the probe back via RecordNeutral.
func (g *Group) Allow(scope string) (ok bool, probe bool, retryAfter time.Duration) {
	sb := g.breakerFor(scope)
	now := g.now()

	sb.mu.Lock()
	defer sb.mu.Unlock()

	switch sb.state {
	case StateClosed:
		return true, false, 0
	case StateOpen:
		if now.Before(sb.openUntil) {
			return false, false, sb.openUntil.Sub(now)
		}
		sb.state = StateHalfOpen
		sb.probeInFlight = true
		l := logger.WithComponent("CircuitBreaker")
		l.Debug().Str("scope", scope).Msg("Breaker half-open, probe admitted.")
		return true, true, 0
	default: // StateHalfOpen
		if sb.probeInFlight {
			return false, false, sb.timeout
		}
		sb.probeInFlight = true
		return true, true, 0
	}
}

// IsOpen reports whether the scope currently rejects requests. It does not
// admit probes; use Allow on the request path.
func (g *Group) IsOpen(scope string) bool {
	sb := g.breakerFor(scope)
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.state == StateOpen {
		return g.now().Before(sb.openUntil)
	}
	return false
}

// RecordOutcome feeds a request outcome back into the scope's breaker.
// probe must be true only when the outcome belongs to the request that was
// admitted as the half-open probe; only that outcome decides the half-open
// transition, a late outcome from before the trip never does.
func (g *Group) RecordOutcome(scope string, success bool, probe bool) {
	sb := g.breakerFor(scope)
	now := g.now()

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if probe && sb.state == StateHalfOpen && sb.probeInFlight {
		sb.probeInFlight = false
		if success {
			sb.state = StateClosed
			sb.failures = 0
			sb.successStreak = 1
			l := logger.WithComponent("CircuitBreaker")
			l.Info().Str("scope", scope).Msg("Probe succeeded, breaker closed.")
		} else {
			g.trip(scope, sb, now)
		}
		return
	}

	if sb.state != StateClosed {
		// Late outcome for a request granted before the trip. Counters only.
		if success {
			sb.failures = 0
		}
		return
	}

	if success {
		sb.failures = 0
		sb.successStreak++
		if sb.successStreak >= g.cfg.FailureThreshold {
			sb.successStreak = 0
			if half := sb.timeout / 2; half >= g.cfg.ResetTimeout {
				sb.timeout = half
			} else {
				sb.timeout = g.cfg.ResetTimeout
			}
		}
		return
	}

	sb.successStreak = 0
	sb.failures++
	if sb.failures >= g.cfg.FailureThreshold {
		g.trip(scope, sb, now)
	}
}

// RecordNeutral hands back an admitted request without judging it (e.g. the
// caller cancelled before sending). When the request held the half-open
// probe, the probe becomes available to the next caller.
func (g *Group) RecordNeutral(scope string, probe bool) {
	if !probe {
		return
	}
	sb := g.breakerFor(scope)
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.state == StateHalfOpen && sb.probeInFlight {
		sb.probeInFlight = false
	}
}

// trip opens the breaker with the current timeout and doubles it for the
// next trip, capped at MaxBackoff. Caller holds sb.mu.
func (g *Group) trip(scope string, sb *scopeBreaker, now time.Time) {
	sb.state = StateOpen
	sb.openUntil = now.Add(sb.timeout)
	l := logger.WithComponent("CircuitBreaker")
	l.Warn().
		Str("scope", scope).
		Dur("cool_down", sb.timeout).
		Int("failures", sb.failures).
		Msg("Breaker tripped open.")
	if doubled := sb.timeout * 2; doubled <= g.cfg.MaxBackoff {
		sb.timeout = doubled
	} else {
		sb.timeout = g.cfg.MaxBackoff
	}
}

// StateOf reports the current state of a scope's breaker without creating
// one for unseen scopes.
func (g *Group) StateOf(scope string) State {
	g.mu.RLock()
	sb, ok := g.scopes[scope]
	g.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.state
}

// Snapshot reports the state of every known scope breaker.
func (g *Group) Snapshot() map[string]string {
	g.mu.RLock()
	scopes := make(map[string]*scopeBreaker, len(g.scopes))
	for scope, sb := range g.scopes {
		scopes[scope] = sb
	}
	g.mu.RUnlock()

	snap := make(map[string]string, len(scopes))
	for scope, sb := range scopes {
		sb.mu.Lock()
		snap[scope] = sb.state.String()
		sb.mu.Unlock()
	}
	return snap
}

// Reset forgets every scope breaker. Used on configuration reload.
func (g *Group) Reset() {
	g.mu.Lock()
	g.scopes = make(map[string]*scopeBreaker)
	g.mu.Unlock()
}
