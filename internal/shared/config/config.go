package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/ini.v1"

	"stealthgate/internal/shared/types"
)

// Default returns the baseline behavior configuration. LoadIni maps the ini
// file over these values, so absent keys keep their defaults.
func Default() *types.Config {
	return &types.Config{
		LogConf:      types.LogConf{Level: "info"},
		SnapshotConf: types.SnapshotConf{IntervalSeconds: 30},
		GlobalLimit:  types.RateLimitConf{WindowSeconds: 60, MaxRequests: 120},
		DomainLimit:  types.RateLimitConf{WindowSeconds: 60, MaxRequests: 30},
		IPLimit:      types.RateLimitConf{WindowSeconds: 60, MaxRequests: 60},
		SessionLimit: types.RateLimitConf{WindowSeconds: 60, MaxRequests: 20},
		BreakerConf: types.BreakerConf{
			FailureThreshold:    3,
			ResetTimeoutSeconds: 30,
			MaxBackoffSeconds:   600,
		},
		ProxyConf: types.ProxyConf{
			RotationStrategy:   "round_robin",
			FailureThreshold:   3,
			CoolDownSeconds:    60,
			MaxCoolDownSeconds: 1800,
		},
		UserAgentConf: types.UserAgentConf{
			RotationStrategy:   "random",
			FailureThreshold:   5,
			CoolDownSeconds:    120,
			MaxCoolDownSeconds: 3600,
			MinLength:          40,
			MaxLength:          512,
			RequiredSubstrings: "Mozilla/",
		},
		FingerprintConf: types.FingerprintConf{CacheTTLSeconds: 1800},
		RetryConf:       types.RetryConf{BaseBackoffMs: 500, MaxBackoffMs: 60000},
		MouseMove:       types.BehaviorRangeConf{MinMs: 50, MaxMs: 300, Distribution: "normal"},
		Keystroke:       types.BehaviorRangeConf{MinMs: 60, MaxMs: 250, Distribution: "normal"},
		Scroll:          types.BehaviorRangeConf{MinMs: 200, MaxMs: 900, Distribution: "exponential"},
		Click:           types.BehaviorRangeConf{MinMs: 100, MaxMs: 500, Distribution: "uniform"},
		FormSubmit:      types.BehaviorRangeConf{MinMs: 400, MaxMs: 2000, Distribution: "normal"},
	}
}

// LoadIni loads the behavior configuration file over the defaults.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnvString(&cfg.WebConf.Password, "STEALTHGATE_WEB_PASSWORD")
	return nil
}

// LoadProxies loads the proxies.json data file. A missing file yields an
// empty list, not an error; pools must then be fed by a later reload.
func LoadProxies(fileName string) ([]*types.ProxyEntry, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.ProxyEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read proxies file: %w", err)
	}

	var entries []*types.ProxyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proxies file: %w", err)
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("%s:%d", e.Host, e.Port)
		}
	}
	return entries, nil
}

// LoadUserAgents loads the user_agents.json data file (a flat list of
// user agent strings). A missing file yields an empty list.
func LoadUserAgents(fileName string) ([]string, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read user agents file: %w", err)
	}

	var agents []string
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user agents file: %w", err)
	}
	return agents, nil
}

// LoadFingerprintTables loads fingerprint.json. A missing file returns nil,
// which makes the generator fall back to its compiled-in tables.
func LoadFingerprintTables(fileName string) (*types.FingerprintTables, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fingerprint tables: %w", err)
	}

	tables := &types.FingerprintTables{}
	if err := json.Unmarshal(data, tables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fingerprint tables: %w", err)
	}
	return tables, nil
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
