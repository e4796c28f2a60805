package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	AdminPort     int    `yaml:"admin_port"`
	SessionSecret string `yaml:"session_secret"` // HS256 key for end-user session tokens
	WorkerToken   string `yaml:"worker_token"`   // capability token for worker-only routes
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"` // OpenAI-compatible gateway base
	DefaultModel  string `yaml:"default_model"`
	MaxIterations int    `yaml:"max_iterations"` // agent loop bound
}

type QueueConfig struct {
	MaxActivePerUser int           `yaml:"max_active_per_user"`
	MaxDailyPerUser  int           `yaml:"max_daily_per_user"`
	ClaimBatchSize   int           `yaml:"claim_batch_size"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Workers          int           `yaml:"workers"`
}

type StreamConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxLifetime       time.Duration `yaml:"max_lifetime"`
	TerminalWindow    time.Duration `yaml:"terminal_window"` // how long finished jobs stay in snapshots
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Queue    QueueConfig    `yaml:"queue"`
	Stream   StreamConfig   `yaml:"stream"`

	// Costs overrides the built-in per-tool micro-credit baselines, keyed by
	// tool name.
	Costs map[string]int64 `yaml:"costs"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.WorkerToken == "" {
		return nil, errors.New("server.worker_token is required")
	}
	if cfg.Server.SessionSecret == "" && !dev {
		return nil, errors.New("server.session_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields. Exported so tests can build a
// usable config without a YAML file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AdminPort <= 0 {
		cfg.Server.AdminPort = 9090
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxIterations <= 0 {
		cfg.AI.MaxIterations = 10
	}
	if cfg.Queue.MaxActivePerUser <= 0 {
		cfg.Queue.MaxActivePerUser = 10
	}
	if cfg.Queue.MaxDailyPerUser <= 0 {
		cfg.Queue.MaxDailyPerUser = 1000
	}
	if cfg.Queue.ClaimBatchSize <= 0 {
		cfg.Queue.ClaimBatchSize = 5
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Stream.PollInterval <= 0 {
		cfg.Stream.PollInterval = 2 * time.Second
	}
	if cfg.Stream.HeartbeatInterval <= 0 {
		cfg.Stream.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Stream.MaxLifetime <= 0 {
		cfg.Stream.MaxLifetime = 10 * time.Minute
	}
	if cfg.Stream.TerminalWindow <= 0 {
		cfg.Stream.TerminalWindow = 5 * time.Minute
	}
}
