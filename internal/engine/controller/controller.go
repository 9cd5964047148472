package controller

import (
	"errors"
	"fmt"
	"time"

	"stealthgate/internal/engine/breaker"
	"stealthgate/internal/engine/fingerprint"
	"stealthgate/internal/engine/identity"
	"stealthgate/internal/engine/ratelimit"
	"stealthgate/internal/shared/logger"
)

// DenyReason distinguishes the two expected, recoverable denial kinds.
type DenyReason int

const (
	ReasonRateLimited DenyReason = iota
	ReasonCircuitOpen
)

func (r DenyReason) String() string {
	if r == ReasonCircuitOpen {
		return "circuit_open"
	}
	return "rate_limited"
}

// DenyError is the expected denial outcome of Acquire. Callers branch on it
// with errors.As and sleep RetryAfter before re-acquiring.
type DenyError struct {
	Reason     DenyReason
	Scope      string // the denying scope; empty for aggregated rate denials
	RetryAfter time.Duration
}

func (e *DenyError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s on scope %q, retry after %s", e.Reason, e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("%s, retry after %s", e.Reason, e.RetryAfter)
}

// ErrReleased is returned when a Permit is released more than once.
var ErrReleased = errors.New("permit already released")

// Config wires the controller's collaborators and the caller-side backoff
// schedule.
type Config struct {
	Budget       *ratelimit.Budget
	Breakers     *breaker.Group
	Proxies      *identity.Pool
	UserAgents   *identity.Pool
	Fingerprints *fingerprint.Generator

	RetryBase time.Duration
	RetryMax  time.Duration
}

// Controller is the request orchestrator: it composes the rate budget, the
// circuit breakers, both identity pools and the fingerprint generator into a
// single non-blocking decision per request. It never performs the network
// action and never sleeps; callers act on the returned decision.
type Controller struct {
	budget       *ratelimit.Budget
	breakers     *breaker.Group
	proxies      *identity.Pool
	userAgents   *identity.Pool
	fingerprints *fingerprint.Generator

	retryBase time.Duration
	retryMax  time.Duration
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &Controller{
		budget:       cfg.Budget,
		breakers:     cfg.Breakers,
		proxies:      cfg.Proxies,
		userAgents:   cfg.UserAgents,
		fingerprints: cfg.Fingerprints,
		retryBase:    cfg.RetryBase,
		retryMax:     cfg.RetryMax,
	}
}

// Acquire decides whether a request may be sent now and, if so, as whom.
// Evaluation order: circuit breakers for every scope, then the conjunctive
// rate budget, then proxy and user agent selection, then the fingerprint
// bound to the chosen proxy. The call never blocks; denials carry the wait
// the caller should observe, and identity.ErrExhausted is a hard stop.
func (c *Controller) Acquire(scopes []string) (*Permit, error) {
	var probeScopes []string
	abortProbes := func() {
		for _, scope := range probeScopes {
			c.breakers.RecordNeutral(scope, true)
		}
	}

	for _, scope := range scopes {
		ok, probe, retryAfter := c.breakers.Allow(scope)
		if !ok {
			abortProbes()
			return nil, &DenyError{Reason: ReasonCircuitOpen, Scope: scope, RetryAfter: retryAfter}
		}
		if probe {
			probeScopes = append(probeScopes, scope)
		}
	}

	if res := c.budget.TryConsumeAll(scopes, 1); !res.Allowed {
		abortProbes()
		return nil, &DenyError{Reason: ReasonRateLimited, RetryAfter: res.RetryAfter}
	}

	proxy, err := c.proxies.Select()
	if err != nil {
		abortProbes()
		return nil, fmt.Errorf("proxy %w", identity.ErrExhausted)
	}

	ua, err := c.userAgents.Select()
	if err != nil {
		abortProbes()
		return nil, fmt.Errorf("user agent %w", identity.ErrExhausted)
	}

	fp, err := c.fingerprints.GetOrCreate(proxy.ID, proxy.Country)
	if err != nil {
		abortProbes()
		return nil, fmt.Errorf("fingerprint for proxy %q: %w", proxy.ID, err)
	}

	return &Permit{
		Proxy:       proxy,
		UserAgent:   ua,
		Fingerprint: fp,
		Scopes:      append([]string(nil), scopes...),
		probeScopes: probeScopes,
	}, nil
}

// Release reports the outcome of a granted Permit back into the engine. It
// must be called exactly once per Permit, including for abandoned requests
// (OutcomeCancelled, which charges nothing to any failure streak). A fatal
// outcome blacklists the identity used and discards its fingerprint.
func (c *Controller) Release(p *Permit, outcome Outcome) error {
	if p == nil {
		return errors.New("nil permit")
	}
	if p.released.Swap(true) {
		return ErrReleased
	}

	class, known := Classify(outcome)
	if !known {
		l := logger.WithComponent("RequestController")
		l.Warn().
			Int("outcome", int(outcome)).
			Msg("Unclassifiable outcome reported, treating as retryable.")
	}

	probed := make(map[string]bool, len(p.probeScopes))
	for _, scope := range p.probeScopes {
		probed[scope] = true
	}

	switch class {
	case ClassNeutral:
		for _, scope := range p.Scopes {
			c.breakers.RecordNeutral(scope, probed[scope])
		}
	case ClassSuccess:
		for _, scope := range p.Scopes {
			c.breakers.RecordOutcome(scope, true, probed[scope])
		}
		c.proxies.ReportOutcome(p.Proxy.ID, true, false)
		c.userAgents.ReportOutcome(p.UserAgent.ID, true, false)
	case ClassFatal:
		for _, scope := range p.Scopes {
			c.breakers.RecordOutcome(scope, false, probed[scope])
		}
		c.proxies.ReportOutcome(p.Proxy.ID, false, true)
		c.userAgents.ReportOutcome(p.UserAgent.ID, false, true)
		c.fingerprints.Evict(p.Proxy.ID)
		l := logger.WithComponent("RequestController")
		l.Warn().
			Str("proxy", p.Proxy.ID).
			Str("outcome", outcome.String()).
			Msg("Fatal outcome, identity blacklisted.")
	default: // ClassRetryable
		for _, scope := range p.Scopes {
			c.breakers.RecordOutcome(scope, false, probed[scope])
		}
		c.proxies.ReportOutcome(p.Proxy.ID, false, false)
		c.userAgents.ReportOutcome(p.UserAgent.ID, false, false)
	}
	return nil
}

// Backoff returns the wait before re-acquisition attempt n (0-based):
// exponential from the configured base, capped at the configured ceiling.
func (c *Controller) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := c.retryBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.retryMax || d <= 0 {
			return c.retryMax
		}
	}
	if d > c.retryMax {
		d = c.retryMax
	}
	return d
}

// ScopeStatus is the observability view of one scope. Unlimited marks scopes
// whose class carries no budget; their token count is meaningless and stays
// zero.
type ScopeStatus struct {
	TokensRemaining float64 `json:"tokens_remaining"`
	Unlimited       bool    `json:"unlimited,omitempty"`
	BreakerState    string  `json:"breaker_state"`
}

// Snapshot is the periodic observability record. It is outbound only: the
// engine never reads a persisted snapshot back.
type Snapshot struct {
	Timestamp  time.Time              `json:"timestamp"`
	Scopes     map[string]ScopeStatus `json:"scopes"`
	Proxies    []identity.Snapshot    `json:"proxies"`
	UserAgents []identity.Snapshot    `json:"user_agents"`
}

// Snapshot captures the current engine state for observability.
func (c *Controller) Snapshot() *Snapshot {
	tokens := c.budget.Snapshot()
	states := c.breakers.Snapshot()

	scopes := make(map[string]ScopeStatus, len(tokens)+len(states))
	for scope, remaining := range tokens {
		scopes[scope] = ScopeStatus{TokensRemaining: remaining, BreakerState: breaker.StateClosed.String()}
	}
	for scope, state := range states {
		status := scopes[scope]
		status.BreakerState = state
		if _, seen := tokens[scope]; !seen {
			remaining, budgeted := c.budget.Tokens(scope)
			status.TokensRemaining = remaining
			status.Unlimited = !budgeted
		}
		scopes[scope] = status
	}

	return &Snapshot{
		Timestamp:  time.Now().UTC(),
		Scopes:     scopes,
		Proxies:    c.proxies.SnapshotAll(),
		UserAgents: c.userAgents.SnapshotAll(),
	}
}

// Reload rebuilds the engine from fresh configuration entries: budgets and
// breakers reset, both pools replaced (bans cleared), fingerprints flushed.
// This is the only recovery path from an exhausted pool.
func (c *Controller) Reload(proxies, userAgents []identity.Entry) (identity.LoadResult, identity.LoadResult) {
	c.budget.Reset()
	c.breakers.Reset()
	proxyRes := c.proxies.LoadFresh(proxies)
	uaRes := c.userAgents.LoadFresh(userAgents)
	c.fingerprints.Flush()
	l := logger.WithComponent("RequestController")
	l.Info().
		Int("proxies", proxyRes.Accepted).
		Int("user_agents", uaRes.Accepted).
		Msg("Engine reloaded from fresh configuration.")
	return proxyRes, uaRes
}
