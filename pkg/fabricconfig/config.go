// Package fabricconfig implements the layered configuration for the
// coordinator binary: built-in defaults, overlaid by an
// optional YAML file, overlaid by environment variables, overlaid last by
// explicit CLI flags.
package fabricconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's full configuration. PoolSize sizes the
// coordinator's dispatch pool; cmd/fabric-worker does not read this config
// and takes its pool size from its own --pool-size flag.
type Config struct {
	BindAddress       string        `yaml:"bindAddress"`
	Port              int           `yaml:"port"`
	MaxNodes          int           `yaml:"maxNodes"`
	ListenBacklog     int           `yaml:"listenBacklog"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`
	ExpectedWorkers   int           `yaml:"expectedWorkers"`
	TotalLayers       int           `yaml:"totalLayers"`
	BytesPerLayer     int64         `yaml:"bytesPerLayer"`
	PoolSize          int           `yaml:"poolSize"`
}

// DefaultConfig returns a Config populated with this system's baseline
// defaults.
func DefaultConfig() *Config {
	return &Config{
		BindAddress:       "0.0.0.0",
		Port:              5050,
		MaxNodes:          8,
		ListenBacklog:     8,
		HeartbeatInterval: 2000 * time.Millisecond,
		HeartbeatTimeout:  6000 * time.Millisecond,
		ExpectedWorkers:   1,
		TotalLayers:       1,
		BytesPerLayer:     1 << 20,
		PoolSize:          4,
	}
}

// FromFile reads a YAML configuration file and merges it on top of the
// built-in defaults. Fields absent from the file retain their defaults.
func FromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies environment variable overrides to cfg (a new default
// Config is created first if cfg is nil).
//
// Environment variable mapping (all optional, prefix FABRIC_):
//
//	FABRIC_BIND_ADDRESS        → BindAddress
//	FABRIC_PORT                → Port
//	FABRIC_MAX_NODES           → MaxNodes
//	FABRIC_LISTEN_BACKLOG      → ListenBacklog
//	FABRIC_HEARTBEAT_INTERVAL  → HeartbeatInterval (duration string)
//	FABRIC_HEARTBEAT_TIMEOUT   → HeartbeatTimeout  (duration string)
//	FABRIC_EXPECTED_WORKERS    → ExpectedWorkers
//	FABRIC_TOTAL_LAYERS        → TotalLayers
//	FABRIC_BYTES_PER_LAYER     → BytesPerLayer
//	FABRIC_POOL_SIZE           → PoolSize
func FromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	setEnvStr("FABRIC_BIND_ADDRESS", &cfg.BindAddress)
	setEnvInt("FABRIC_PORT", &cfg.Port)
	setEnvInt("FABRIC_MAX_NODES", &cfg.MaxNodes)
	setEnvInt("FABRIC_LISTEN_BACKLOG", &cfg.ListenBacklog)
	setEnvDuration("FABRIC_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	setEnvDuration("FABRIC_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout)
	setEnvInt("FABRIC_EXPECTED_WORKERS", &cfg.ExpectedWorkers)
	setEnvInt("FABRIC_TOTAL_LAYERS", &cfg.TotalLayers)
	setEnvInt64("FABRIC_BYTES_PER_LAYER", &cfg.BytesPerLayer)
	setEnvInt("FABRIC_POOL_SIZE", &cfg.PoolSize)
	return cfg
}

// Load implements the configuration hierarchy: defaults, then (if
// configPath is non-empty) the YAML file, then environment variables. CLI
// flag overrides are applied by the caller afterward via Overrides.Apply.
func Load(configPath string) (*Config, error) {
	var cfg *Config
	if configPath != "" {
		var err error
		cfg, err = FromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}
	return FromEnv(cfg), nil
}

// Validate performs structural validation, returning a descriptive error
// for the first invalid field encountered.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return fmt.Errorf("bindAddress must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0,65535], got %d", c.Port)
	}
	if c.MaxNodes < 1 {
		return fmt.Errorf("maxNodes must be >= 1, got %d", c.MaxNodes)
	}
	if c.ListenBacklog < 1 {
		return fmt.Errorf("listenBacklog must be >= 1, got %d", c.ListenBacklog)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeatInterval must be > 0")
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("heartbeatTimeout (%v) must be > heartbeatInterval (%v)",
			c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.ExpectedWorkers < 1 {
		return fmt.Errorf("expectedWorkers must be >= 1, got %d", c.ExpectedWorkers)
	}
	if c.ExpectedWorkers > c.MaxNodes {
		return fmt.Errorf("expectedWorkers (%d) must be <= maxNodes (%d)", c.ExpectedWorkers, c.MaxNodes)
	}
	if c.TotalLayers < 1 {
		return fmt.Errorf("totalLayers must be >= 1, got %d", c.TotalLayers)
	}
	if c.BytesPerLayer <= 0 {
		return fmt.Errorf("bytesPerLayer must be > 0, got %d", c.BytesPerLayer)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("poolSize must be >= 1, got %d", c.PoolSize)
	}
	return nil
}

// Overrides holds CLI flag values; nil fields mean "not set on the command
// line" and are left alone by Apply, so unset flags never clobber YAML/env
// values.
type Overrides struct {
	BindAddress       *string
	Port              *int
	MaxNodes          *int
	ListenBacklog     *int
	HeartbeatInterval *time.Duration
	HeartbeatTimeout  *time.Duration
	ExpectedWorkers   *int
	TotalLayers       *int
	BytesPerLayer     *int64
	PoolSize          *int
}

// Apply writes every non-nil field of o onto c.
func (c *Config) Apply(o *Overrides) {
	if o == nil {
		return
	}
	if o.BindAddress != nil {
		c.BindAddress = *o.BindAddress
	}
	if o.Port != nil {
		c.Port = *o.Port
	}
	if o.MaxNodes != nil {
		c.MaxNodes = *o.MaxNodes
	}
	if o.ListenBacklog != nil {
		c.ListenBacklog = *o.ListenBacklog
	}
	if o.HeartbeatInterval != nil {
		c.HeartbeatInterval = *o.HeartbeatInterval
	}
	if o.HeartbeatTimeout != nil {
		c.HeartbeatTimeout = *o.HeartbeatTimeout
	}
	if o.ExpectedWorkers != nil {
		c.ExpectedWorkers = *o.ExpectedWorkers
	}
	if o.TotalLayers != nil {
		c.TotalLayers = *o.TotalLayers
	}
	if o.BytesPerLayer != nil {
		c.BytesPerLayer = *o.BytesPerLayer
	}
	if o.PoolSize != nil {
		c.PoolSize = *o.PoolSize
	}
}

func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
