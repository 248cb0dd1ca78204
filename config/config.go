package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DispatchConfig holds the offer time limit and the expiry sweep settings.
type DispatchConfig struct {
	OfferTTLMinutes      int           `yaml:"offer_ttl_minutes"`
	OfferTTL             time.Duration `yaml:"-"` // Ignored by YAML parser
	SweepEnabled         bool          `yaml:"sweep_enabled"`
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds"`
	SweepInterval        time.Duration `yaml:"-"`
	// SystemUserID is the sender recorded on notifications the engine emits
	// on its own behalf (expiry sweeps, exhaustion notices).
	SystemUserID int64 `yaml:"system_user_id"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Dispatch.OfferTTLMinutes <= 0 {
		cfg.Dispatch.OfferTTLMinutes = 5
	}
	cfg.Dispatch.OfferTTL = time.Duration(cfg.Dispatch.OfferTTLMinutes) * time.Minute

	if cfg.Dispatch.SweepIntervalSeconds <= 0 {
		cfg.Dispatch.SweepIntervalSeconds = 30
	}
	cfg.Dispatch.SweepInterval = time.Duration(cfg.Dispatch.SweepIntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
