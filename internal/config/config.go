// Package config loads evocrewd's configuration from YAML with an
// environment-variable overlay, modeled on the teacher's pkg/config: a root
// Config struct with SetDefaults/Validate on the root, CLI flag > env var >
// config file > default priority (spec §6.4).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for evocrewd.
type Config struct {
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	Transport string `yaml:"transport,omitempty"` // "stdio" or "http"
	DataRoot  string `yaml:"data_root,omitempty"`

	WorkerPoolSize       int64 `yaml:"worker_pool_size,omitempty"`
	MaxConcurrentWorkflows int64 `yaml:"max_concurrent_workflows,omitempty"`

	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
	Evolution EvolutionConfig `yaml:"evolution,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`

	Logger LoggerConfig `yaml:"logger,omitempty"`

	// AdminBootstrapKey, if set, is used verbatim instead of minting a
	// random admin key on first boot (spec §6.4 "admin bootstrap key
	// material") — useful for reproducible deployments/tests.
	AdminBootstrapKey string `yaml:"admin_bootstrap_key,omitempty"`
}

// RateLimitConfig mirrors internal/security/ratelimit.Config's tunables.
type RateLimitConfig struct {
	HourlyLimit   int64         `yaml:"hourly_limit,omitempty"`
	BurstLimit    int64         `yaml:"burst_limit,omitempty"`
	BlockDuration time.Duration `yaml:"block_duration,omitempty"`
}

// EvolutionConfig mirrors internal/evolution.Engine's cooldown tunable.
type EvolutionConfig struct {
	Cooldown time.Duration `yaml:"cooldown,omitempty"`
}

// SchedulerConfig mirrors internal/supervisor.Config's tunables.
type SchedulerConfig struct {
	EvolutionSweepInterval    time.Duration `yaml:"evolution_sweep_interval,omitempty"`
	InstructionExpireInterval time.Duration `yaml:"instruction_expire_interval,omitempty"`
	InstructionTTL            time.Duration `yaml:"instruction_ttl,omitempty"`
	WorkflowReapInterval      time.Duration `yaml:"workflow_reap_interval,omitempty"`
	MaxWorkflowDuration       time.Duration `yaml:"max_workflow_duration,omitempty"`
	HealthProbeInterval       time.Duration `yaml:"health_probe_interval,omitempty"`
}

// LoggerConfig configures logging behavior (spec §1.1). Priority order
// (highest to lowest): CLI flags, environment variables, config file,
// defaults — same as the teacher's pkg/config.LoggerConfig.
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"` // "simple" or "verbose"
}

// Load reads path (if non-empty) as YAML, applies the environment overlay,
// then SetDefaults/Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverlay()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envNames are the contractual environment variable names (spec §6.4).
const (
	envHost              = "EVOCREW_HOST"
	envPort              = "EVOCREW_PORT"
	envTransport         = "EVOCREW_TRANSPORT"
	envDataRoot          = "EVOCREW_DATA_ROOT"
	envWorkerPoolSize    = "EVOCREW_WORKER_POOL_SIZE"
	envMaxConcurrentWFs  = "EVOCREW_MAX_CONCURRENT_WORKFLOWS"
	envRateLimitHourly   = "EVOCREW_RATE_LIMIT_HOURLY"
	envRateLimitBurst    = "EVOCREW_RATE_LIMIT_BURST"
	envEvolutionCooldown = "EVOCREW_EVOLUTION_COOLDOWN"
	envInstructionTTL    = "EVOCREW_INSTRUCTION_TTL"
	envMaxWorkflowDur    = "EVOCREW_MAX_WORKFLOW_DURATION"
	envAdminKey          = "EVOCREW_ADMIN_KEY"
	envLogLevel          = "LOG_LEVEL"
	envLogFile           = "LOG_FILE"
	envLogFormat         = "LOG_FORMAT"
)

func (c *Config) applyEnvOverlay() {
	if v := os.Getenv(envHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(envPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv(envTransport); v != "" {
		c.Transport = v
	}
	if v := os.Getenv(envDataRoot); v != "" {
		c.DataRoot = v
	}
	if v := os.Getenv(envWorkerPoolSize); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.WorkerPoolSize = n
		}
	}
	if v := os.Getenv(envMaxConcurrentWFs); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxConcurrentWorkflows = n
		}
	}
	if v := os.Getenv(envRateLimitHourly); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.HourlyLimit = n
		}
	}
	if v := os.Getenv(envRateLimitBurst); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.BurstLimit = n
		}
	}
	if v := os.Getenv(envEvolutionCooldown); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Evolution.Cooldown = d
		}
	}
	if v := os.Getenv(envInstructionTTL); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.InstructionTTL = d
		}
	}
	if v := os.Getenv(envMaxWorkflowDur); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.MaxWorkflowDuration = d
		}
	}
	if v := os.Getenv(envAdminKey); v != "" {
		c.AdminBootstrapKey = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv(envLogFile); v != "" {
		c.Logger.File = v
	}
	if v := os.Getenv(envLogFormat); v != "" {
		c.Logger.Format = v
	}
}

// SetDefaults fills in every zero-valued field with spec §4's literal
// defaults. The values are written out here; no sub-component package's
// DefaultConfig is consulted.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Transport == "" {
		c.Transport = "stdio"
	}
	if c.DataRoot == "" {
		c.DataRoot = "./data"
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = int64(runtime.GOMAXPROCS(0))
	}
	if c.MaxConcurrentWorkflows == 0 {
		c.MaxConcurrentWorkflows = 8
	}
	if c.RateLimit.HourlyLimit == 0 {
		c.RateLimit.HourlyLimit = 100
	}
	if c.RateLimit.BurstLimit == 0 {
		c.RateLimit.BurstLimit = 10
	}
	if c.RateLimit.BlockDuration == 0 {
		c.RateLimit.BlockDuration = time.Hour
	}
	if c.Evolution.Cooldown == 0 {
		c.Evolution.Cooldown = 6 * time.Hour
	}
	if c.Scheduler.EvolutionSweepInterval == 0 {
		c.Scheduler.EvolutionSweepInterval = time.Hour
	}
	if c.Scheduler.InstructionExpireInterval == 0 {
		c.Scheduler.InstructionExpireInterval = 60 * time.Second
	}
	if c.Scheduler.InstructionTTL == 0 {
		c.Scheduler.InstructionTTL = time.Hour
	}
	if c.Scheduler.WorkflowReapInterval == 0 {
		c.Scheduler.WorkflowReapInterval = 30 * time.Second
	}
	if c.Scheduler.MaxWorkflowDuration == 0 {
		c.Scheduler.MaxWorkflowDuration = time.Hour
	}
	if c.Scheduler.HealthProbeInterval == 0 {
		c.Scheduler.HealthProbeInterval = 30 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "simple"
	}
}

// Validate checks the configuration for invalid-but-parseable values (spec
// §6.4 exit code 2: "invalid configuration").
func (c *Config) Validate() error {
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport %q (valid: stdio, http)", c.Transport)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be at least 1, got %d", c.WorkerPoolSize)
	}
	if c.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("max_concurrent_workflows must be at least 1, got %d", c.MaxConcurrentWorkflows)
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Logger.Level)
	}
	return nil
}

// Snapshot returns the configuration as a sanitized map (secrets redacted)
// for the get_server_config tool (spec §4 supplemented features).
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"host":                     c.Host,
		"port":                     c.Port,
		"transport":                c.Transport,
		"data_root":                c.DataRoot,
		"worker_pool_size":         c.WorkerPoolSize,
		"max_concurrent_workflows": c.MaxConcurrentWorkflows,
		"rate_limit": map[string]any{
			"hourly_limit": c.RateLimit.HourlyLimit,
			"burst_limit":  c.RateLimit.BurstLimit,
		},
		"evolution": map[string]any{
			"cooldown": c.Evolution.Cooldown.String(),
		},
		"scheduler": map[string]any{
			"evolution_sweep_interval":    c.Scheduler.EvolutionSweepInterval.String(),
			"instruction_expire_interval": c.Scheduler.InstructionExpireInterval.String(),
			"instruction_ttl":             c.Scheduler.InstructionTTL.String(),
			"workflow_reap_interval":      c.Scheduler.WorkflowReapInterval.String(),
			"max_workflow_duration":       c.Scheduler.MaxWorkflowDuration.String(),
		},
		"logger": map[string]any{
			"level":  c.Logger.Level,
			"format": c.Logger.Format,
		},
		"admin_bootstrap_key": redacted(c.AdminBootstrapKey),
	}
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}
