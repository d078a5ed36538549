package monitor

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds monitoring service configuration
type Config struct {
	// LedgerCapacity is the call buffer size. Default: 1000
	LedgerCapacity int
	// LedgerCleanupInterval is how many tracks between lookup cleanup
	// passes. Default: 100
	LedgerCleanupInterval int
	// RedundancyWindow is the span within which repeated calls to the
	// same endpoint are grouped. Default: 30s
	RedundancyWindow time.Duration
	// PatternHistoryCapacity bounds the retained pattern history.
	// Default: 50
	PatternHistoryCapacity int
	// IssueHistoryCapacity bounds the retained issue history.
	// Default: 50
	IssueHistoryCapacity int
	// IssueDedupWindow is the proximity for issue deduplication.
	// Default: 30s
	IssueDedupWindow time.Duration
	// ThrottleRequestsPerSecond is the admission rate. Default: 100
	ThrottleRequestsPerSecond float64
	// ThrottleBurst is the admission burst capacity. Default: 20
	ThrottleBurst int
	// ThrottleEnabled gates the admission throttle. Default: true
	ThrottleEnabled bool
	// RecentCallLimit is how many recent calls a stats snapshot carries.
	// Default: 10
	RecentCallLimit int
}

// DefaultConfig returns default monitoring configuration, with environment
// variable overrides applied (CALLWATCH_* variables).
func DefaultConfig() *Config {
	return &Config{
		LedgerCapacity:            getEnvInt("CALLWATCH_LEDGER_CAPACITY", 1000),
		LedgerCleanupInterval:     getEnvInt("CALLWATCH_LEDGER_CLEANUP_INTERVAL", 100),
		RedundancyWindow:          getEnvDuration("CALLWATCH_REDUNDANCY_WINDOW", 30*time.Second),
		PatternHistoryCapacity:    getEnvInt("CALLWATCH_PATTERN_HISTORY", 50),
		IssueHistoryCapacity:      getEnvInt("CALLWATCH_ISSUE_HISTORY", 50),
		IssueDedupWindow:          getEnvDuration("CALLWATCH_ISSUE_DEDUP_WINDOW", 30*time.Second),
		ThrottleRequestsPerSecond: getEnvFloat("CALLWATCH_THROTTLE_RPS", 100),
		ThrottleBurst:             getEnvInt("CALLWATCH_THROTTLE_BURST", 20),
		ThrottleEnabled:           getEnvBool("CALLWATCH_THROTTLE_ENABLED", true),
		RecentCallLimit:           getEnvInt("CALLWATCH_RECENT_CALLS", 10),
	}
}

// fileConfig is the YAML shape of a config file. Durations are strings
// ("30s", "5m") converted on load.
type fileConfig struct {
	LedgerCapacity        int     `yaml:"ledger_capacity,omitempty"`
	LedgerCleanupInterval int     `yaml:"ledger_cleanup_interval,omitempty"`
	RedundancyWindow      string  `yaml:"redundancy_window,omitempty"`
	PatternHistory        int     `yaml:"pattern_history,omitempty"`
	IssueHistory          int     `yaml:"issue_history,omitempty"`
	IssueDedupWindow      string  `yaml:"issue_dedup_window,omitempty"`
	ThrottleRPS           float64 `yaml:"throttle_rps,omitempty"`
	ThrottleBurst         int     `yaml:"throttle_burst,omitempty"`
	ThrottleEnabled       *bool   `yaml:"throttle_enabled,omitempty"`
	RecentCalls           int     `yaml:"recent_calls,omitempty"`
}

// LoadConfig loads monitoring configuration from a YAML file, layered over
// DefaultConfig: absent fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	cfg := DefaultConfig()
	if fc.LedgerCapacity > 0 {
		cfg.LedgerCapacity = fc.LedgerCapacity
	}
	if fc.LedgerCleanupInterval > 0 {
		cfg.LedgerCleanupInterval = fc.LedgerCleanupInterval
	}
	if fc.RedundancyWindow != "" {
		d, err := time.ParseDuration(fc.RedundancyWindow)
		if err != nil {
			return nil, fmt.Errorf("invalid redundancy_window %q: %w", fc.RedundancyWindow, err)
		}
		cfg.RedundancyWindow = d
	}
	if fc.PatternHistory > 0 {
		cfg.PatternHistoryCapacity = fc.PatternHistory
	}
	if fc.IssueHistory > 0 {
		cfg.IssueHistoryCapacity = fc.IssueHistory
	}
	if fc.IssueDedupWindow != "" {
		d, err := time.ParseDuration(fc.IssueDedupWindow)
		if err != nil {
			return nil, fmt.Errorf("invalid issue_dedup_window %q: %w", fc.IssueDedupWindow, err)
		}
		cfg.IssueDedupWindow = d
	}
	if fc.ThrottleRPS > 0 {
		cfg.ThrottleRequestsPerSecond = fc.ThrottleRPS
	}
	if fc.ThrottleBurst > 0 {
		cfg.ThrottleBurst = fc.ThrottleBurst
	}
	if fc.ThrottleEnabled != nil {
		cfg.ThrottleEnabled = *fc.ThrottleEnabled
	}
	if fc.RecentCalls > 0 {
		cfg.RecentCallLimit = fc.RecentCalls
	}
	return cfg, nil
}

// getEnvInt retrieves an int from an environment variable, or returns the default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float from an environment variable, or returns the default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a bool from an environment variable, or returns the default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration from an environment variable, or returns the default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
