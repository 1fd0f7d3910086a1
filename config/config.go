// Package config loads the application configuration from a YAML file, the
// environment, and an optional .env file. ${VAR} and ${VAR:-default}
// placeholders in the YAML are expanded from the environment before parsing.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "COSTLENS_CONFIG"

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Spend   SpendConfig   `yaml:"spend"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `yaml:"port"`

	// MasterKey protects every endpoint except /health and /metrics.
	// An empty key disables authentication.
	MasterKey string `yaml:"master_key"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MetricsEndpoint is the HTTP path of the Prometheus endpoint.
	MetricsEndpoint string `yaml:"metrics_endpoint"`

	// BodyLimit caps request body sizes, e.g. "1M".
	BodyLimit string `yaml:"body_limit"`
}

// StorageConfig selects and configures the database backend.
type StorageConfig struct {
	// Type is "sqlite", "postgresql", or "mongodb".
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration.
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration.
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// LedgerConfig controls savings event recording.
type LedgerConfig struct {
	Enabled       bool `yaml:"enabled"`
	BufferSize    int  `yaml:"buffer_size"`
	FlushInterval int  `yaml:"flush_interval_seconds"`
	RetentionDays int  `yaml:"retention_days"`
}

// SpendConfig controls the external spend source.
type SpendConfig struct {
	// Command is the usage-reporting CLI to invoke.
	Command string `yaml:"command"`

	// Args are appended after the generated arguments.
	Args []string `yaml:"args"`

	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Disabled       bool `yaml:"disabled"`

	// CacheTTLSeconds bounds how long a cached raw snapshot stays fresh.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// CacheConfig selects the snapshot cache backend.
type CacheConfig struct {
	// Type is "local" or "redis".
	Type  string      `yaml:"type"`
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis cache configuration.
type RedisConfig struct {
	URL        string `yaml:"url"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			MetricsEnabled:  true,
			MetricsEndpoint: "/metrics",
			BodyLimit:       "1M",
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: ".cache/costlens.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "costlens"},
		},
		Ledger: LedgerConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 365,
		},
		Spend: SpendConfig{
			Command:         "ccusage",
			TimeoutSeconds:  30,
			CacheTTLSeconds: 900,
		},
		Cache: CacheConfig{
			Type: "local",
			Dir:  ".cache/costlens",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration. The path argument wins, then the
// COSTLENS_CONFIG environment variable, then ./config.yaml. A missing file
// is only an error when the path was given explicitly; otherwise defaults
// apply. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := expandString(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file, run on defaults
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the environment overrides for settings that are
// awkward to keep in a file. Environment values win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COSTLENS_MASTER_KEY"); v != "" {
		cfg.Server.MasterKey = v
	}
	if v := os.Getenv("COSTLENS_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("COSTLENS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for problems that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Server.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port %q: must be a number", c.Server.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			problems = append(problems, "sqlite storage requires a path")
		}
	case "postgresql":
		if c.Storage.PostgreSQL.URL == "" {
			problems = append(problems, "postgresql storage requires a url")
		}
	case "mongodb":
		if c.Storage.MongoDB.URL == "" {
			problems = append(problems, "mongodb storage requires a url")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid storage type %q: must be sqlite, postgresql, or mongodb", c.Storage.Type))
	}

	switch c.Cache.Type {
	case "", "local":
	case "redis":
		if c.Cache.Redis.URL == "" {
			problems = append(problems, "redis cache requires a url")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid cache type %q: must be local or redis", c.Cache.Type))
	}

	if c.Spend.TimeoutSeconds < 0 {
		problems = append(problems, "spend timeout cannot be negative")
	}
	if c.Ledger.RetentionDays < 0 {
		problems = append(problems, "ledger retention cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString substitutes ${VAR} and ${VAR:-default} placeholders from the
// environment. An empty or unset variable falls back to its default when one
// is given; a plain ${VAR} with no value stays in place verbatim so the
// problem is visible downstream instead of silently becoming empty.
func expandString(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, fallback := groups[1], groups[2] != "", groups[3]

		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return fallback
		}
		return match
	})
}
