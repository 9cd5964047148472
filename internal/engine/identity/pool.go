package identity

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"stealthgate/internal/shared/logger"
)

// ErrExhausted is returned by Select when no entry is active. Callers must
// treat it as a hard stop for the current batch, not a retryable condition;
// recovery requires a reload with fresh entries.
var ErrExhausted = errors.New("identity pool exhausted")

// Strategy names the rotation strategies. The values follow the usual
// load-balancing vocabulary.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyLeastUsed  Strategy = "least_used"
)

// ValidateFunc checks one candidate value at load time. A nil ValidateFunc
// accepts everything.
type ValidateFunc func(value string) error

// Config tunes one pool instance.
type Config struct {
	Strategy         Strategy
	FailureThreshold int           // soft failures before an entry cools
	CoolDown         time.Duration // base cool-down, doubled per extra failure
	MaxCoolDown      time.Duration
	Validate         ValidateFunc
	Now              func() time.Time
}

// Pool is a rotating collection of identity values with per-entry health
// state. Entries are loaded from configuration and mutated only through
// ReportOutcome; selection never blocks.
type Pool struct {
	name string
	cfg  Config
	now  func() time.Time

	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
	banned  map[string]struct{} // values hard-banned for the process lifetime
	cursor  int
	rng     *rand.Rand
}

// New creates an empty pool; call Load to populate it.
func New(name string, cfg Config) *Pool {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRoundRobin
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = time.Minute
	}
	if cfg.MaxCoolDown < cfg.CoolDown {
		cfg.MaxCoolDown = cfg.CoolDown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pool{
		name:   name,
		cfg:    cfg,
		now:    now,
		byID:   make(map[string]*Entry),
		banned: make(map[string]struct{}),
		rng:    rand.New(rand.NewSource(now().UnixNano())),
	}
}

// LoadResult reports how a load went.
type LoadResult struct {
	Accepted int
	Rejected int
}

// Load replaces the pool's entries with the given candidates, validating
// each. Values hard-banned earlier in the process stay blacklisted even if
// re-listed; use LoadFresh to clear the ban set.
func (p *Pool) Load(candidates []Entry) LoadResult {
	return p.load(candidates, false)
}

// LoadFresh replaces the pool's entries and forgets all prior bans. This is
// the explicit "re-include as fresh" path for operator-driven reloads.
func (p *Pool) LoadFresh(candidates []Entry) LoadResult {
	return p.load(candidates, true)
}

func (p *Pool) load(candidates []Entry, fresh bool) LoadResult {
	l := logger.WithComponent("IdentityPool/" + p.name)
	var res LoadResult

	p.mu.Lock()
	defer p.mu.Unlock()

	if fresh {
		p.banned = make(map[string]struct{})
	}

	p.entries = p.entries[:0]
	p.byID = make(map[string]*Entry, len(candidates))
	p.cursor = 0

	for i := range candidates {
		c := candidates[i]
		if c.Value == "" {
			res.Rejected++
			continue
		}
		if p.cfg.Validate != nil {
			if err := p.cfg.Validate(c.Value); err != nil {
				res.Rejected++
				l.Warn().Str("id", c.ID).Err(err).Msg("Entry rejected at load time.")
				continue
			}
		}
		if c.ID == "" {
			c.ID = c.Value
		}
		if _, dup := p.byID[c.ID]; dup {
			res.Rejected++
			l.Warn().Str("id", c.ID).Msg("Duplicate entry id rejected at load time.")
			continue
		}

		e := &Entry{ID: c.ID, Value: c.Value, Country: c.Country}
		if _, bannedBefore := p.banned[e.Value]; bannedBefore {
			e.State = StateBlacklisted
		}
		p.entries = append(p.entries, e)
		p.byID[e.ID] = e
		res.Accepted++
	}

	l.Info().
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Msg("Pool loaded.")
	return res
}

// Select returns a copy of the next usable entry under the configured
// rotation strategy, or ErrExhausted when nothing is active. Cooling entries
// whose cool-down has elapsed are revived here.
func (p *Pool) Select() (*Entry, error) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]int, 0, len(p.entries))
	for i, e := range p.entries {
		switch e.State {
		case StateBlacklisted:
			continue
		case StateCooling:
			if now.Before(e.CoolDownUntil) {
				continue
			}
			e.State = StateActive
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return nil, ErrExhausted
	}

	var chosen *Entry
	switch p.cfg.Strategy {
	case StrategyRandom:
		chosen = p.entries[candidates[p.rng.Intn(len(candidates))]]
	case StrategyLeastUsed:
		idx := candidates[0]
		for _, i := range candidates[1:] {
			if p.entries[i].LastUsed.Before(p.entries[idx].LastUsed) {
				idx = i
			}
		}
		chosen = p.entries[idx]
	default: // round robin: next candidate after the cursor, cyclic
		idx := candidates[0]
		for _, i := range candidates {
			if i > p.cursor {
				idx = i
				break
			}
		}
		p.cursor = idx
		chosen = p.entries[idx]
	}

	chosen.LastUsed = now
	chosen.TotalUses++

	cp := *chosen
	return &cp, nil
}

// ReportOutcome feeds back the fate of a request that used the entry.
// hardBan moves the entry to blacklisted immediately and permanently; a soft
// failure increments the failure count and, past the threshold, cools the
// entry with an exponentially growing cool-down. Success resets the count
// and reactivates a cooling entry.
func (p *Pool) ReportOutcome(id string, success bool, hardBan bool) {
	l := logger.WithComponent("IdentityPool/" + p.name)

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byID[id]
	if !ok {
		l.Warn().Str("id", id).Msg("Outcome reported for unknown entry.")
		return
	}
	if e.State == StateBlacklisted {
		return
	}

	if success {
		e.FailureCount = 0
		if e.State == StateCooling {
			e.State = StateActive
		}
		return
	}

	if hardBan {
		e.State = StateBlacklisted
		p.banned[e.Value] = struct{}{}
		l.Warn().Str("id", id).Msg("Entry blacklisted on hard ban signal.")
		return
	}

	e.FailureCount++
	if e.FailureCount >= p.cfg.FailureThreshold {
		over := e.FailureCount - p.cfg.FailureThreshold
		cool := p.cfg.CoolDown << uint(over)
		if cool > p.cfg.MaxCoolDown || cool <= 0 {
			cool = p.cfg.MaxCoolDown
		}
		e.State = StateCooling
		e.CoolDownUntil = p.now().Add(cool)
		l.Info().
			Str("id", id).
			Int("failures", e.FailureCount).
			Dur("cool_down", cool).
			Msg("Entry cooling after repeated failures.")
	}
}

// Get returns a copy of an entry by id.
func (p *Pool) Get(id string) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// ActiveCount reports how many entries are currently selectable (expired
// cool-downs count as active).
func (p *Pool) ActiveCount() int {
	now := p.now()
	p.mu.RLock()
	defer p.mu.RUnlock()
	count := 0
	for _, e := range p.entries {
		switch e.State {
		case StateActive:
			count++
		case StateCooling:
			if !now.Before(e.CoolDownUntil) {
				count++
			}
		}
	}
	return count
}

// Len reports the total number of loaded entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// SnapshotAll returns the observability view of every entry.
func (p *Pool) SnapshotAll() []Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snaps := make([]Snapshot, 0, len(p.entries))
	for _, e := range p.entries {
		snaps = append(snaps, Snapshot{
			ID:           e.ID,
			State:        e.State.String(),
			FailureCount: e.FailureCount,
			LastUsed:     e.LastUsed,
			TotalUses:    e.TotalUses,
		})
	}
	return snaps
}

// String identifies the pool in errors and logs.
func (p *Pool) String() string {
	return fmt.Sprintf("pool(%s)", p.name)
}
