package config

import (
	"time"

	"github.com/zen-systems/nexus/pkg/registry"
)

// EngineConfig tunes the orchestrator and recorder.
type EngineConfig struct {
	Retry    RetryConfig    `yaml:"retry,omitempty"`
	Timeouts TimeoutConfig  `yaml:"timeouts,omitempty"`
	Recorder RecorderConfig `yaml:"recorder,omitempty"`
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. A
	// negative value disables retries.
	MaxRetries    int     `yaml:"max_retries,omitempty"`
	BaseBackoffMs int     `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int     `yaml:"max_backoff_ms,omitempty"`
	Jitter        float64 `yaml:"jitter,omitempty"`
}

// TimeoutConfig holds the per-attempt timeout for each mode.
type TimeoutConfig struct {
	LowMs    int `yaml:"low_ms,omitempty"`
	MediumMs int `yaml:"medium_ms,omitempty"`
	HighMs   int `yaml:"high_ms,omitempty"`
}

// RecorderConfig bounds detached persistence.
type RecorderConfig struct {
	TimeoutMs   int `yaml:"timeout_ms,omitempty"`
	ErrorBuffer int `yaml:"error_buffer,omitempty"`
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	cfg := &EngineConfig{}
	applyEngineDefaults(cfg)
	return cfg
}

// ByMode returns the timeouts keyed by mode.
func (t TimeoutConfig) ByMode() map[registry.Mode]time.Duration {
	return map[registry.Mode]time.Duration{
		registry.ModeLow:    ms(t.LowMs),
		registry.ModeMedium: ms(t.MediumMs),
		registry.ModeHigh:   ms(t.HighMs),
	}
}

func (r RetryConfig) BaseBackoff() time.Duration { return ms(r.BaseBackoffMs) }
func (r RetryConfig) MaxBackoff() time.Duration  { return ms(r.MaxBackoffMs) }

// Retries returns the retry budget with negative values clamped to zero.
func (r RetryConfig) Retries() int {
	if r.MaxRetries < 0 {
		return 0
	}
	return r.MaxRetries
}

func (r RecorderConfig) Timeout() time.Duration { return ms(r.TimeoutMs) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg == nil {
		return
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = 0.2
	}
	if cfg.Retry.Jitter < 0 {
		cfg.Retry.Jitter = 0
	}
	if cfg.Retry.Jitter > 1 {
		cfg.Retry.Jitter = 1
	}
	if cfg.Timeouts.LowMs == 0 {
		cfg.Timeouts.LowMs = 30000
	}
	if cfg.Timeouts.MediumMs == 0 {
		cfg.Timeouts.MediumMs = 45000
	}
	if cfg.Timeouts.HighMs == 0 {
		cfg.Timeouts.HighMs = 60000
	}
	if cfg.Recorder.TimeoutMs == 0 {
		cfg.Recorder.TimeoutMs = 10000
	}
	if cfg.Recorder.ErrorBuffer == 0 {
		cfg.Recorder.ErrorBuffer = 64
	}
}
