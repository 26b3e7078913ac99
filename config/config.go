// Package config resolves the service settings. Values come from an optional
// YAML file, then from the environment; command-line flags are applied last by
// the cli package.
package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Storage modes.
const (
	ModeInMemory = "inmemory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
	ModeMongo    = "mongo"
	ModeRedis    = "redis"
	// ModeCached is mongo behind a redis read-through cache.
	ModeCached = "cached"
)

var ValidModes = []string{ModeInMemory, ModeSQLite, ModePostgres, ModeMongo, ModeRedis, ModeCached}

type Config struct {
	StorageMode   string `yaml:"storage_mode"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresURL   string `yaml:"postgres_url"`
	MongoURL      string `yaml:"mongo_url"`
	MongoDBName   string `yaml:"mongo_db_name"`
	RedisURL      string `yaml:"redis_url"`
	EventsChannel string `yaml:"events_channel"`
	HTTPAddr      string `yaml:"http_addr"`
	LogLevel      string `yaml:"log_level"`
	Development   bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		StorageMode: ModeSQLite,
		SQLitePath:  "social-ledger.db",
		MongoDBName: "social_ledger",
		HTTPAddr:    "0.0.0.0:8080",
		LogLevel:    "info",
	}
}

// envVars maps environment variables onto fields.
var envVars = []struct {
	name  string
	field func(*Config) *string
}{
	{"STORAGE_MODE", func(c *Config) *string { return &c.StorageMode }},
	{"SQLITE_PATH", func(c *Config) *string { return &c.SQLitePath }},
	{"PG_URL", func(c *Config) *string { return &c.PostgresURL }},
	{"MONGO_URL", func(c *Config) *string { return &c.MongoURL }},
	{"MONGO_DB_NAME", func(c *Config) *string { return &c.MongoDBName }},
	{"REDIS_URL", func(c *Config) *string { return &c.RedisURL }},
	{"EVENTS_CHANNEL", func(c *Config) *string { return &c.EventsChannel }},
	{"HTTP_ADDR", func(c *Config) *string { return &c.HTTPAddr }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
}

// Load reads path (skipped when empty) over the defaults and then applies
// environment overrides through lookup, normally os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if lookup != nil {
		for _, v := range envVars {
			if value, ok := lookup(v.name); ok && value != "" {
				*v.field(&cfg) = value
			}
		}
	}
	return cfg, nil
}

// Validate checks that the selected mode has what it needs to connect.
func (c Config) Validate() error {
	if !slices.Contains(ValidModes, c.StorageMode) {
		return fmt.Errorf("invalid storage mode %q: must be one of %v", c.StorageMode, ValidModes)
	}
	missing := func(name string) error {
		return fmt.Errorf("storage mode %q requires %s", c.StorageMode, name)
	}
	switch c.StorageMode {
	case ModeSQLite:
		if c.SQLitePath == "" {
			return missing("sqlite_path")
		}
	case ModePostgres:
		if c.PostgresURL == "" {
			return missing("postgres_url")
		}
	case ModeMongo:
		if c.MongoURL == "" || c.MongoDBName == "" {
			return missing("mongo_url and mongo_db_name")
		}
	case ModeRedis:
		if c.RedisURL == "" {
			return missing("redis_url")
		}
	case ModeCached:
		if c.MongoURL == "" || c.MongoDBName == "" || c.RedisURL == "" {
			return missing("mongo_url, mongo_db_name and redis_url")
		}
	}
	if c.EventsChannel != "" && c.RedisURL == "" {
		return fmt.Errorf("events_channel requires redis_url")
	}
	return nil
}
