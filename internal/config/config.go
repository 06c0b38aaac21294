// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type SchedulerConfig struct {
	// FillDelay is the debounce window before a requested fill runs.
	FillDelay time.Duration `yaml:"fill_delay"`
	// FillCooldown is the minimum spacing between two fills.
	FillCooldown time.Duration `yaml:"fill_cooldown"`
	// SafetyInterval is the period of the low-priority fill tick.
	SafetyInterval time.Duration `yaml:"safety_interval"`
	// SyncInterval is the period of the background sync retry.
	SyncInterval time.Duration `yaml:"sync_interval"`
	SnapshotCron string        `yaml:"snapshot_cron"`
}

type SyncConfig struct {
	Workers int `yaml:"workers"`
	// EchoGrace is how long a confirmed write keeps shielding its record from
	// remote snapshots.
	EchoGrace time.Duration `yaml:"echo_grace"`
}

type RateLimitConfig struct {
	WritesPerMinute int  `yaml:"writes_per_minute"`
	TrustProxy      bool `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sync      SyncConfig      `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Defaults fills unset tuning values.
func (c *Config) Defaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.Scheduler.FillDelay == 0 {
		c.Scheduler.FillDelay = 300 * time.Millisecond
	}
	if c.Scheduler.FillCooldown == 0 {
		c.Scheduler.FillCooldown = 3 * time.Second
	}
	if c.Scheduler.SafetyInterval == 0 {
		c.Scheduler.SafetyInterval = 30 * time.Second
	}
	if c.Scheduler.SyncInterval == 0 {
		c.Scheduler.SyncInterval = 15 * time.Second
	}
	if c.Scheduler.SnapshotCron == "" {
		c.Scheduler.SnapshotCron = "* * * * *"
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.EchoGrace == 0 {
		c.Sync.EchoGrace = 2 * time.Second
	}
	if c.RateLimit.WritesPerMinute == 0 {
		c.RateLimit.WritesPerMinute = 120
	}
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Environment overrides
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.App.Environment = env
	}
	if path := os.Getenv("DATABASE_FILENAME"); path != "" {
		cfg.Database.Filename = path
	}

	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("cache path is required")
	}

	if c.Scheduler.FillDelay < 0 || c.Scheduler.FillCooldown < 0 {
		return fmt.Errorf("fill delay and cooldown must not be negative")
	}
	if c.Scheduler.FillDelay >= time.Second {
		return fmt.Errorf("fill delay must be under a second, got %s", c.Scheduler.FillDelay)
	}
	if c.Scheduler.SafetyInterval <= 0 || c.Scheduler.SyncInterval <= 0 {
		return fmt.Errorf("safety and sync intervals must be positive")
	}
	if _, err := cron.ParseStandard(c.Scheduler.SnapshotCron); err != nil {
		return fmt.Errorf("invalid snapshot cron %q: %w", c.Scheduler.SnapshotCron, err)
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1")
	}
	if c.Sync.EchoGrace < 0 {
		return fmt.Errorf("echo grace must not be negative")
	}
	if c.RateLimit.WritesPerMinute < 1 {
		return fmt.Errorf("rate limit writes per minute must be at least 1")
	}

	return nil
}
