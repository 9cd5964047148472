package app

import (
	"fmt"
	"strings"
	"time"

	"stealthgate/internal/engine/behavior"
	"stealthgate/internal/engine/identity"
	"stealthgate/internal/engine/ratelimit"
	"stealthgate/internal/shared/types"
)

// Translation helpers between the ini-mapped configuration and the engine
// packages' own config types.

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func budgetClasses(cfg *types.Config) map[ratelimit.ScopeClass]ratelimit.ClassConfig {
	return map[ratelimit.ScopeClass]ratelimit.ClassConfig{
		ratelimit.ClassGlobal: {
			Window:      seconds(cfg.GlobalLimit.WindowSeconds),
			MaxRequests: cfg.GlobalLimit.MaxRequests,
		},
		ratelimit.ClassDomain: {
			Window:      seconds(cfg.DomainLimit.WindowSeconds),
			MaxRequests: cfg.DomainLimit.MaxRequests,
		},
		ratelimit.ClassIP: {
			Window:      seconds(cfg.IPLimit.WindowSeconds),
			MaxRequests: cfg.IPLimit.MaxRequests,
		},
		ratelimit.ClassSession: {
			Window:      seconds(cfg.SessionLimit.WindowSeconds),
			MaxRequests: cfg.SessionLimit.MaxRequests,
		},
	}
}

func behaviorRanges(cfg *types.Config) map[behavior.ActionKind]behavior.Range {
	toRange := func(c types.BehaviorRangeConf) behavior.Range {
		return behavior.Range{
			Min:          time.Duration(c.MinMs) * time.Millisecond,
			Max:          time.Duration(c.MaxMs) * time.Millisecond,
			Distribution: behavior.Distribution(c.Distribution),
		}
	}
	return map[behavior.ActionKind]behavior.Range{
		behavior.ActionMouseMove:  toRange(cfg.MouseMove),
		behavior.ActionKeystroke:  toRange(cfg.Keystroke),
		behavior.ActionScroll:     toRange(cfg.Scroll),
		behavior.ActionClick:      toRange(cfg.Click),
		behavior.ActionFormSubmit: toRange(cfg.FormSubmit),
	}
}

func proxyEntries(entries []*types.ProxyEntry) []identity.Entry {
	out := make([]identity.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, identity.Entry{
			ID:      e.ID,
			Value:   fmt.Sprintf("%s:%d", e.Host, e.Port),
			Country: e.Country,
		})
	}
	return out
}

func userAgentEntries(agents []string) []identity.Entry {
	out := make([]identity.Entry, 0, len(agents))
	for _, ua := range agents {
		out = append(out, identity.Entry{Value: ua})
	}
	return out
}
