package identity

import "time"

// HealthState is the rotation eligibility of one pool entry.
type HealthState int

const (
	// StateActive entries participate in selection.
	StateActive HealthState = iota
	// StateCooling entries are excluded until CoolDownUntil, then return to
	// active on the next selection attempt.
	StateCooling
	// StateBlacklisted entries never re-enter rotation for the process
	// lifetime unless explicitly re-included by a fresh load.
	StateBlacklisted
)

func (s HealthState) String() string {
	switch s {
	case StateCooling:
		return "cooling"
	case StateBlacklisted:
		return "blacklisted"
	default:
		return "active"
	}
}

// Entry is one rotatable identity value (a proxy or a user agent). Entries
// are owned by their pool; callers receive copies and report outcomes by ID.
type Entry struct {
	ID      string
	Value   string
	Country string // region hint, proxies only

	State         HealthState
	FailureCount  int
	CoolDownUntil time.Time
	LastUsed      time.Time
	TotalUses     int64
}

// Snapshot is the observability view of one entry.
type Snapshot struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastUsed     time.Time `json:"last_used,omitempty"`
	TotalUses    int64     `json:"total_uses"`
}
