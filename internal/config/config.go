package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ProjectConfig struct {
	Project  string         `yaml:"project" env:"FEEDCRAFT_PROJECT"`
	Schema   string         `yaml:"schema"  env:"FEEDCRAFT_SCHEMA"  env-default:"./feeds"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"    env:"FEEDCRAFT_DB_DRIVER"    env-default:"sqlite"`
	DSN      string `yaml:"dsn"       env:"FEEDCRAFT_DB_DSN"       env-default:"feedcraft.db"`
	MaxConns int32  `yaml:"max_conns" env:"FEEDCRAFT_DB_MAX_CONNS" env-default:"10"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled" env:"FEEDCRAFT_REDIS_ENABLED" env-default:"false"`
	Addr    string `yaml:"addr"    env:"FEEDCRAFT_REDIS_ADDR"    env-default:"localhost:6379"`
	Queue   string `yaml:"queue"   env:"FEEDCRAFT_REDIS_QUEUE"   env-default:"feedcraft:jobs"`
}

// DispatchConfig controls fan-out. The async flags defer the matching seam
// to the job queue and require redis.
type DispatchConfig struct {
	Concurrency int  `yaml:"concurrency"  env:"FEEDCRAFT_DISPATCH_CONCURRENCY"  env-default:"8"`
	AsyncRoute  bool `yaml:"async_route"  env:"FEEDCRAFT_DISPATCH_ASYNC_ROUTE"  env-default:"false"`
	AsyncHandle bool `yaml:"async_handle" env:"FEEDCRAFT_DISPATCH_ASYNC_HANDLE" env-default:"false"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"FEEDCRAFT_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"FEEDCRAFT_LOG_FORMAT" env-default:"text"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"FEEDCRAFT_METRICS_ADDR"`
}

// Load reads path (YAML, then environment overrides and defaults). An empty
// path loads from the environment only.
func Load(path string) (*ProjectConfig, error) {
	var cfg ProjectConfig
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	return &cfg, nil
}

func (c *ProjectConfig) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if strings.TrimSpace(c.Schema) == "" {
		return fmt.Errorf("schema path is required")
	}
	if !slices.Contains([]string{DriverMemory, DriverSQLite, DriverPostgres}, c.Database.Driver) {
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.Driver != DriverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required for driver %s", c.Database.Driver)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max_conns must be positive")
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch concurrency must be positive")
	}
	if (c.Dispatch.AsyncRoute || c.Dispatch.AsyncHandle) && !c.Redis.Enabled {
		return fmt.Errorf("async dispatch requires redis")
	}
	if c.Redis.Enabled {
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis addr is required")
		}
		if strings.TrimSpace(c.Redis.Queue) == "" {
			return fmt.Errorf("redis queue is required")
		}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("unsupported log level: %q", c.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("unsupported log format: %q", c.Log.Format)
	}
	return nil
}
