// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"server"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"database"`
	Moderation ModerationConfig `yaml:"moderation" envconfig:"moderator"`
	Reward     RewardConfig     `yaml:"reward" envconfig:"reward"`
	Lease      LeaseConfig      `yaml:"lease" envconfig:"lease"`
	Kafka      KafkaConfig      `yaml:"kafka" envconfig:"kafka"`
	Export     ExportConfig     `yaml:"export" envconfig:"export"`
	Jobs       JobsConfig       `yaml:"jobs" envconfig:"jobs"`
	Log        LogConfig        `yaml:"log" envconfig:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" envconfig:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins" envconfig:"allowed_origins"`
	ClaimTimeout   time.Duration `yaml:"claim_timeout" envconfig:"claim_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"driver"` // postgres, sqlite
	URL    string `yaml:"url" envconfig:"url"`
}

type ModerationConfig struct {
	// Key is the shared secret moderators send in X-Moderator-Key. Empty disables moderation.
	Key string `yaml:"key" envconfig:"key"`
}

type RewardConfig struct {
	Mode    string           `yaml:"mode" envconfig:"mode"` // http, evm
	Timeout time.Duration    `yaml:"timeout" envconfig:"timeout"`
	HTTP    RewardHTTPConfig `yaml:"http" envconfig:"http"`
	EVM     RewardEVMConfig  `yaml:"evm" envconfig:"evm"`
}

type RewardHTTPConfig struct {
	URL   string `yaml:"url" envconfig:"url"`
	Token string `yaml:"token" envconfig:"token"`
}

type RewardEVMConfig struct {
	RPCURL      string `yaml:"rpc_url" envconfig:"rpc_url"`
	ChainID     int64  `yaml:"chain_id" envconfig:"chain_id"`
	Contract    string `yaml:"contract" envconfig:"contract"`
	PrivateKey  string `yaml:"private_key" envconfig:"private_key"`
	GasLimit    uint64 `yaml:"gas_limit" envconfig:"gas_limit"`
	WaitReceipt bool   `yaml:"wait_receipt" envconfig:"wait_receipt"`
}

type LeaseConfig struct {
	Backend string           `yaml:"backend" envconfig:"backend"` // memory, redis
	Redis   LeaseRedisConfig `yaml:"redis" envconfig:"redis"`
}

type LeaseRedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"addr"`
	Password string `yaml:"password" envconfig:"password"`
	DB       int    `yaml:"db" envconfig:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"brokers"`
	Topic   string   `yaml:"topic" envconfig:"topic"`
}

// Enabled reports whether lifecycle events should be published
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type ExportConfig struct {
	Bucket          string        `yaml:"bucket" envconfig:"bucket"`
	Endpoint        string        `yaml:"endpoint" envconfig:"endpoint"`
	Region          string        `yaml:"region" envconfig:"region"`
	AccessKeyID     string        `yaml:"access_key_id" envconfig:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key" envconfig:"secret_access_key"`
	Prefix          string        `yaml:"prefix" envconfig:"prefix"`
	Interval        time.Duration `yaml:"interval" envconfig:"interval"`
}

// Enabled reports whether snapshots should be written to object storage
func (e ExportConfig) Enabled() bool {
	return e.Bucket != ""
}

type JobsConfig struct {
	StatusInterval time.Duration `yaml:"status_interval" envconfig:"status_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

// Default returns a configuration that runs a single node on a local SQLite file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3001,
			AllowedOrigins: []string{"http://localhost:3000"},
			ClaimTimeout:   90 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			URL:    "submissions.db",
		},
		Reward: RewardConfig{
			Mode:    "http",
			Timeout: 60 * time.Second,
		},
		Lease: LeaseConfig{
			Backend: "memory",
		},
		Kafka: KafkaConfig{
			Topic: "submission-events",
		},
		Export: ExportConfig{
			Region:   "auto",
			Prefix:   "snapshots",
			Interval: 24 * time.Hour,
		},
		Jobs: JobsConfig{
			StatusInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env if present, then the optional YAML file at path, then environment
// overrides such as SERVER_PORT or REWARD_EVM_RPC_URL.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Server.AllowedOrigins = trimAll(c.Server.AllowedOrigins)
	c.Kafka.Brokers = trimAll(c.Kafka.Brokers)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Reward.Mode = strings.ToLower(strings.TrimSpace(c.Reward.Mode))
	c.Lease.Backend = strings.ToLower(strings.TrimSpace(c.Lease.Backend))
	c.Reward.HTTP.URL = strings.TrimRight(c.Reward.HTTP.URL, "/")
}

// Validate checks the settings every command needs. Moderation may stay unconfigured.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ClaimTimeout <= 0 {
		errs = append(errs, errors.New("server.claim_timeout must be positive"))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	if c.Reward.Timeout <= 0 {
		errs = append(errs, errors.New("reward.timeout must be positive"))
	}
	switch c.Reward.Mode {
	case "http":
		if c.Reward.HTTP.URL == "" {
			errs = append(errs, errors.New("reward.http.url is required in http mode"))
		}
	case "evm":
		if c.Reward.EVM.RPCURL == "" || c.Reward.EVM.Contract == "" || c.Reward.EVM.PrivateKey == "" {
			errs = append(errs, errors.New("reward.evm needs rpc_url, contract and private_key in evm mode"))
		}
		if c.Reward.EVM.ChainID <= 0 {
			errs = append(errs, errors.New("reward.evm.chain_id must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("reward.mode %q must be http or evm", c.Reward.Mode))
	}

	switch c.Lease.Backend {
	case "memory":
	case "redis":
		if c.Lease.Redis.Addr == "" {
			errs = append(errs, errors.New("lease.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lease.backend %q must be memory or redis", c.Lease.Backend))
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Export.Enabled() && c.Export.Interval <= 0 {
		errs = append(errs, errors.New("export.interval must be positive"))
	}
	if c.Jobs.StatusInterval <= 0 {
		errs = append(errs, errors.New("jobs.status_interval must be positive"))
	}

	return errors.Join(errs...)
}

// LeaseTTL outlives the longest collaborator call so a redis lease cannot expire mid-transfer
func (c *Config) LeaseTTL() time.Duration {
	return c.Reward.Timeout + 30*time.Second
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
