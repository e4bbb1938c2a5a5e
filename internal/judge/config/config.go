// Package config loads the worker configuration. Profile defaults are
// layered first, then an optional YAML file, then TM_* environment
// variables. Environment always wins so containerized deploys need no
// config file at all.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"treadmill/pkg/errors"
)

// Profile names accepted in TM_CONFIG
const (
	ProfileDev  = "dev"
	ProfileTest = "test"
	ProfileProd = "prod"
)

// Config is the full worker configuration
type Config struct {
	Profile string `yaml:"profile"`

	API       APIConfig       `yaml:"api"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Docker    DockerConfig    `yaml:"docker"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Debug     DebugConfig     `yaml:"debug"`
}

// APIConfig points at the front-office judge API
type APIConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RedisConfig addresses the queue broker
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port for the redis client
func (c RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// QueueConfig names the priority queues and sizes the worker pool
type QueueConfig struct {
	Normal       string        `yaml:"normal"`
	Rejudge      string        `yaml:"rejudge"`
	Retry        string        `yaml:"retry"`
	Concurrency  int           `yaml:"concurrency"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// JobTimeout caps one judge run end to end. The sandbox already
	// bounds each execution; this catches hung containers and stalled
	// data fetches. Zero disables the cap.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// WorkspaceConfig locates judge workspaces on the host
type WorkspaceConfig struct {
	HostRoot string `yaml:"host_root"`
	S3FSRoot string `yaml:"s3fs_root"`

	// StageBySymlink links staged files instead of copying them.
	// Copying is the production default since sandbox containers
	// mount the workspace read-write.
	StageBySymlink bool `yaml:"stage_by_symlink"`
}

// DockerConfig addresses the container engine
type DockerConfig struct {
	Host string `yaml:"host"` // empty uses the environment default
}

// StorageConfig is the object-store fallback for fetching problem data
// when no s3fs mount is configured
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	CacheDir        string `yaml:"cache_dir"`
	CacheLimitBytes int64  `yaml:"cache_limit_bytes"`
}

// Enabled reports whether an object store is configured
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

// LogConfig shapes the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SentryConfig enables error reporting when a DSN is set
type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// DebugConfig exposes the health and queue-depth endpoints
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the defaults of one profile
func Default(profile string) (*Config, error) {
	cfg := &Config{Profile: profile}
	cfg.API.Timeout = 30 * time.Second
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379
	cfg.Queue.Normal = "treadmill_normal"
	cfg.Queue.Rejudge = "treadmill_rejudge"
	cfg.Queue.Retry = "treadmill_retry"
	cfg.Queue.MaxRetries = 3
	cfg.Queue.PollInterval = time.Second
	cfg.Queue.JobTimeout = 10 * time.Minute
	cfg.Storage.CacheDir = "/var/cache/treadmill"
	cfg.Storage.CacheLimitBytes = 4 << 30
	cfg.Debug.Enabled = true
	cfg.Debug.Addr = ":8199"

	switch profile {
	case ProfileDev:
		cfg.API.Endpoint = "http://localhost:8000/api"
		cfg.API.SecretKey = "treadmill-dev"
		cfg.Queue.Concurrency = 1
		cfg.Workspace.HostRoot = "/tmp/treadmill/workspace"
		cfg.Workspace.S3FSRoot = "/tmp/treadmill/s3fs"
		cfg.Workspace.StageBySymlink = true
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	case ProfileTest:
		cfg.API.Endpoint = "http://localhost:8000/api"
		cfg.API.SecretKey = "treadmill-test"
		cfg.Queue.Concurrency = 1
		cfg.Workspace.HostRoot = "/tmp/treadmill-test/workspace"
		cfg.Workspace.S3FSRoot = "/tmp/treadmill-test/s3fs"
		cfg.Workspace.StageBySymlink = true
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
		cfg.Debug.Enabled = false
	case ProfileProd:
		cfg.Queue.Concurrency = 4
		cfg.Workspace.HostRoot = "/var/treadmill/workspace"
		cfg.Workspace.S3FSRoot = "/mnt/talk4u-data"
		cfg.Log.Level = "info"
		cfg.Log.Format = "json"
	default:
		return nil, errors.Newf(errors.InvalidConfig, "unknown profile: %q", profile)
	}
	return cfg, nil
}

// Load builds the configuration from the profile in TM_CONFIG (dev when
// unset), the optional YAML file, and TM_* environment overrides.
func Load(file string) (*Config, error) {
	profile := os.Getenv("TM_CONFIG")
	if profile == "" {
		profile = ProfileDev
	}

	cfg, err := Default(profile)
	if err != nil {
		return nil, err
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, errors.InvalidConfig, "read config file %s", file)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, errors.InvalidConfig, "parse config file %s", file)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TM_API_ENDPOINT"); v != "" {
		cfg.API.Endpoint = v
	}
	if v := os.Getenv("TM_API_SECRET_KEY"); v != "" {
		cfg.API.SecretKey = v
	}
	if v := os.Getenv("TM_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("TM_REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, errors.InvalidConfig, "TM_REDIS_PORT: %q", v)
		}
		cfg.Redis.Port = port
	}
	if v := os.Getenv("TM_SENTRY_DSN"); v != "" {
		cfg.Sentry.DSN = v
	}
	if v := os.Getenv("TM_HOST_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.HostRoot = v
	}
	if v := os.Getenv("TM_S3FS_ROOT"); v != "" {
		cfg.Workspace.S3FSRoot = v
	}
	return nil
}

// Validate rejects configurations the worker cannot start with
func (c *Config) Validate() error {
	if c.API.Endpoint == "" {
		return errors.ConfigError("api.endpoint", "must not be empty")
	}
	if c.API.SecretKey == "" {
		return errors.ConfigError("api.secret_key", "must not be empty")
	}
	if c.Workspace.HostRoot == "" {
		return errors.ConfigError("workspace.host_root", "must not be empty")
	}
	if c.Workspace.S3FSRoot == "" && !c.Storage.Enabled() {
		return errors.ConfigError("workspace.s3fs_root", "set an s3fs mount or configure object storage")
	}
	if c.Queue.Concurrency <= 0 {
		return errors.ConfigError("queue.concurrency", "must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return errors.ConfigError("queue.max_retries", "must not be negative")
	}
	return nil
}
