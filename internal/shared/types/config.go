package types

// LogConf contains logging specific configuration.
type LogConf struct {
	Level string `ini:"level"`
}

// WebConf configures the optional status/snapshot web service.
type WebConf struct {
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// SnapshotConf configures periodic engine snapshots written for observability.
type SnapshotConf struct {
	Path            string `ini:"path"`
	IntervalSeconds int    `ini:"interval_seconds"`
}

// RateLimitConf is the token budget for one scope class. A zero MaxRequests
// disables the budget for that class.
type RateLimitConf struct {
	WindowSeconds int `ini:"window_seconds"`
	MaxRequests   int `ini:"max_requests"`
}

// BreakerConf configures the per-scope circuit breakers.
type BreakerConf struct {
	FailureThreshold    int `ini:"failure_threshold"`
	ResetTimeoutSeconds int `ini:"reset_timeout_seconds"`
	MaxBackoffSeconds   int `ini:"max_backoff_seconds"`
}

// ProxyConf configures proxy pool rotation and cool-down behavior.
type ProxyConf struct {
	RotationStrategy   string `ini:"rotation_strategy"`
	FailureThreshold   int    `ini:"failure_threshold"`
	CoolDownSeconds    int    `ini:"cool_down_seconds"`
	MaxCoolDownSeconds int    `ini:"max_cool_down_seconds"`
}

// UserAgentConf configures user agent pool rotation plus the load-time
// validation bounds for user agent strings.
type UserAgentConf struct {
	RotationStrategy   string `ini:"rotation_strategy"`
	FailureThreshold   int    `ini:"failure_threshold"`
	CoolDownSeconds    int    `ini:"cool_down_seconds"`
	MaxCoolDownSeconds int    `ini:"max_cool_down_seconds"`
	MinLength          int    `ini:"min_length"`
	MaxLength          int    `ini:"max_length"`
	RequiredSubstrings string `ini:"required_substrings"` // comma separated
}

// FingerprintConf configures the profile cache.
type FingerprintConf struct {
	CacheTTLSeconds int `ini:"cache_ttl_seconds"`
}

// RetryConf configures the caller-side re-acquisition backoff schedule.
type RetryConf struct {
	BaseBackoffMs int `ini:"base_backoff_ms"`
	MaxBackoffMs  int `ini:"max_backoff_ms"`
}

// BehaviorRangeConf is the delay range for one action kind.
type BehaviorRangeConf struct {
	MinMs        int    `ini:"min_ms"`
	MaxMs        int    `ini:"max_ms"`
	Distribution string `ini:"distribution"` // uniform, normal, exponential
}

// Config is the unified behavior configuration, mapped from the ini file.
// Entry lists (proxies, user agents, fingerprint tables) live in separate
// JSON data files.
type Config struct {
	LogConf         `ini:"log"`
	WebConf         `ini:"web"`
	SnapshotConf    `ini:"snapshot"`
	GlobalLimit     RateLimitConf `ini:"rate_limit_global"`
	DomainLimit     RateLimitConf `ini:"rate_limit_domain"`
	IPLimit         RateLimitConf `ini:"rate_limit_ip"`
	SessionLimit    RateLimitConf `ini:"rate_limit_session"`
	BreakerConf     `ini:"circuit_breaker"`
	ProxyConf       `ini:"proxy"`
	UserAgentConf   `ini:"user_agent"`
	FingerprintConf `ini:"fingerprint"`
	RetryConf       `ini:"retry"`
	MouseMove       BehaviorRangeConf `ini:"behavior_mouse_move"`
	Keystroke       BehaviorRangeConf `ini:"behavior_keystroke"`
	Scroll          BehaviorRangeConf `ini:"behavior_scroll"`
	Click           BehaviorRangeConf `ini:"behavior_click"`
	FormSubmit      BehaviorRangeConf `ini:"behavior_form_submit"`
}
