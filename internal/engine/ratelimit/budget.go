package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stealthgate/internal/shared/logger"
)

// ScopeClass is the dimension a scope key belongs to. Keys are written as
// "<class>:<value>" ("domain:shopee.tw", "ip:1.2.3.4", "session:abc"); the
// bare key "global" belongs to the global class.
type ScopeClass string

const (
	ClassGlobal  ScopeClass = "global"
	ClassDomain  ScopeClass = "domain"
	ClassIP      ScopeClass = "ip"
	ClassSession ScopeClass = "session"
)

// ClassConfig is the token budget for one scope class. MaxRequests <= 0
// disables budgeting for the class entirely.
type ClassConfig struct {
	Window      time.Duration
	MaxRequests int
}

// Config holds the budget for every scope class plus an optional clock
// override for tests.
type Config struct {
	Classes map[ScopeClass]ClassConfig
	Now     func() time.Time
}

// Result is the outcome of a consumption attempt. When Allowed is false,
// RetryAfter is the maximum wait across all denied scopes.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Budget tracks one continuous token bucket per scope key. Buckets are
// created lazily on first reference and kept for the process lifetime, so
// fractional tokens persist between calls. Each bucket synchronizes itself;
// the map lock only guards bucket creation.
type Budget struct {
	mu       sync.RWMutex
	classes  map[ScopeClass]ClassConfig
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// New creates a Budget from the per-class configuration.
func New(cfg Config) *Budget {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	classes := make(map[ScopeClass]ClassConfig, len(cfg.Classes))
	for class, cc := range cfg.Classes {
		if cc.MaxRequests > 0 && cc.Window > 0 {
			classes[class] = cc
		}
	}
	return &Budget{
		classes:  classes,
		limiters: make(map[string]*rate.Limiter),
		now:      now,
	}
}

// ClassFor maps a scope key to its class. Unknown prefixes fall back to the
// global class so a typo never bypasses rate limiting silently.
func ClassFor(scope string) ScopeClass {
	if idx := strings.IndexByte(scope, ':'); idx > 0 {
		switch ScopeClass(scope[:idx]) {
		case ClassDomain:
			return ClassDomain
		case ClassIP:
			return ClassIP
		case ClassSession:
			return ClassSession
		}
	}
	return ClassGlobal
}

func (b *Budget) limiterFor(scope string) (*rate.Limiter, ClassConfig, bool) {
	class, ok := b.classes[ClassFor(scope)]
	if !ok {
		return nil, ClassConfig{}, false
	}

	b.mu.RLock()
	lim, exists := b.limiters[scope]
	b.mu.RUnlock()
	if exists {
		return lim, class, true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if lim, exists = b.limiters[scope]; exists {
		return lim, class, true
	}
	perSecond := rate.Limit(float64(class.MaxRequests) / class.Window.Seconds())
	lim = rate.NewLimiter(perSecond, class.MaxRequests)
	b.limiters[scope] = lim
	return lim, class, true
}

// TryConsume attempts to take cost tokens from a single scope.
func (b *Budget) TryConsume(scope string, cost int) Result {
	return b.TryConsumeAll([]string{scope}, cost)
}

// TryConsumeAll attempts to take cost tokens from every scope atomically:
// either each scope is charged, or none is. Scopes are evaluated
// conjunctively; on denial the reported RetryAfter is the maximum across the
// denied scopes and any charges already taken are rolled back.
func (b *Budget) TryConsumeAll(scopes []string, cost int) Result {
	now := b.now()

	type charge struct {
		reservation *rate.Reservation
	}
	charges := make([]charge, 0, len(scopes))
	denied := false
	var maxRetry time.Duration

	for _, scope := range scopes {
		lim, class, active := b.limiterFor(scope)
		if !active {
			continue
		}
		r := lim.ReserveN(now, cost)
		if !r.OK() {
			// Cost exceeds the bucket capacity; this can never succeed.
			denied = true
			if class.Window > maxRetry {
				maxRetry = class.Window
			}
			continue
		}
		charges = append(charges, charge{reservation: r})
		if delay := r.DelayFrom(now); delay > 0 {
			denied = true
			if delay > maxRetry {
				maxRetry = delay
			}
		}
	}

	if denied {
		for _, c := range charges {
			c.reservation.CancelAt(now)
		}
		return Result{Allowed: false, RetryAfter: maxRetry}
	}
	return Result{Allowed: true}
}

// Tokens reports the tokens currently available for a scope. Scopes never
// consumed from report their full bucket. The second return is false for
// scopes whose class carries no budget; those scopes are unlimited and have
// no meaningful token count.
func (b *Budget) Tokens(scope string) (float64, bool) {
	lim, class, active := b.limiterFor(scope)
	if !active {
		return 0, false
	}
	tokens := lim.TokensAt(b.now())
	if max := float64(class.MaxRequests); tokens > max {
		tokens = max
	}
	return tokens, true
}

// Scopes returns every scope key seen so far.
func (b *Budget) Scopes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	scopes := make([]string, 0, len(b.limiters))
	for scope := range b.limiters {
		scopes = append(scopes, scope)
	}
	return scopes
}

// Snapshot reports the remaining tokens per known scope.
func (b *Budget) Snapshot() map[string]float64 {
	b.mu.RLock()
	scopes := make([]string, 0, len(b.limiters))
	for scope := range b.limiters {
		scopes = append(scopes, scope)
	}
	b.mu.RUnlock()

	snap := make(map[string]float64, len(scopes))
	for _, scope := range scopes {
		if tokens, ok := b.Tokens(scope); ok {
			snap[scope] = tokens
		}
	}
	return snap
}

// Reset drops every bucket. Used on configuration reload; buckets are
// recreated full on next reference.
func (b *Budget) Reset() {
	b.mu.Lock()
	count := len(b.limiters)
	b.limiters = make(map[string]*rate.Limiter)
	b.mu.Unlock()
	if count > 0 {
		l := logger.WithComponent("RateBudget")
		l.Info().Int("scopes", count).Msg("All scope buckets reset.")
	}
}
