package controller

import (
	"sync/atomic"

	"stealthgate/internal/engine/fingerprint"
	"stealthgate/internal/engine/identity"
)

// Permit is a granted request slot: the identity to present and the scopes
// that were charged for it. Every Permit must be released exactly once, even
// when the caller abandons the request (release with OutcomeCancelled).
type Permit struct {
	Proxy       *identity.Entry
	UserAgent   *identity.Entry
	Fingerprint *fingerprint.Profile

	// Scopes charged at acquisition, used for release accounting.
	Scopes []string

	// probeScopes are scopes where this permit holds the half-open probe.
	probeScopes []string

	released atomic.Bool
}
