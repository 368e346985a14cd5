package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvLocal is the only environment in which development fallbacks
// (built-in secrets, the auth passthrough) are permitted.
const EnvLocal = "local"

// Development-only fallbacks. Load never applies them outside EnvLocal.
const (
	devSessionSecret     = "botdesk-local-development-secret"
	devCredentialsKey    = "botdesk-local-development-credentials-key"
	defaultConfigFile    = "config.yaml"
	defaultMaxUploadSize = 10 << 20
)

// Config holds all configuration for botdesk.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database URL, signing secret, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// LogLevel overrides the environment's default level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Knowledge file storage
	Storage StorageConfig `yaml:"storage"`

	// Optional Redis used for webhook de-duplication
	Redis RedisConfig `yaml:"redis"`

	// BotCredentialsKey encrypts bot platform tokens at rest.
	// A base64-encoded 32-byte key or any passphrase. Required outside local.
	BotCredentialsKey string `yaml:"-" env:"BOT_CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	URL             string        `yaml:"-" env:"DATABASE_URL"` // Secret - not in YAML
	MaxConnections  int32         `yaml:"max_connections" env:"DB_MAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// SessionSecret signs access tokens (HS256).
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"30m"`

	// BcryptCost is the work factor for password hashing.
	BcryptCost int `yaml:"bcrypt_cost" env:"AUTH_BCRYPT_COST" env-default:"10"`

	// DevPassthrough resolves unauthenticated requests to a fixed local principal.
	// Rejected at load time unless Env is local.
	DevPassthrough bool `yaml:"dev_passthrough" env:"AUTH_DEV_PASSTHROUGH" env-default:"false"`
}

// StorageConfig selects and configures the knowledge file blob store.
type StorageConfig struct {
	Backend        string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"filesystem"`
	UploadDir      string `yaml:"upload_dir" env:"STORAGE_UPLOAD_DIR" env-default:"uploads"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"STORAGE_MAX_UPLOAD_BYTES" env-default:"10485760"`

	S3Bucket       string `yaml:"s3_bucket" env:"S3_BUCKET" env-default:""`
	S3Region       string `yaml:"s3_region" env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint     string `yaml:"s3_endpoint" env:"S3_ENDPOINT" env-default:""`
	S3UsePathStyle bool   `yaml:"s3_use_path_style" env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3AccessKey    string `yaml:"-" env:"S3_ACCESS_KEY"` // Secret - not in YAML
	S3SecretKey    string `yaml:"-" env:"S3_SECRET_KEY"` // Secret - not in YAML
}

// Storage backend names.
const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendS3         = "s3"
)

// RedisConfig holds Redis connection settings. Redis is disabled when Host is empty.
type RedisConfig struct {
	Host             string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port             int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password         string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB               int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	WebhookDedupeTTL time.Duration `yaml:"webhook_dedupe_ttl" env:"REDIS_WEBHOOK_DEDUPE_TTL" env-default:"24h"`
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Warnings collects non-fatal notices produced while loading, such as
// development fallbacks being applied. main logs them once the logger exists.
type Warnings []string

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, Warnings, error) {
	return LoadFile(defaultConfigFile, version)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an
// error; configuration then comes from the environment alone.
func LoadFile(path, version string) (*Config, Warnings, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	warnings, err := cfg.validate()
	if err != nil {
		return nil, nil, err
	}

	return cfg, warnings, nil
}

// IsLocal reports whether the process runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// validate enforces required settings and applies local-only fallbacks.
func (c *Config) validate() (Warnings, error) {
	var warnings Warnings

	if strings.TrimSpace(c.Database.URL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	if c.Auth.SessionSecret == "" {
		if !c.IsLocal() {
			return nil, fmt.Errorf("SESSION_SECRET is required in environment %q", c.Env)
		}
		c.Auth.SessionSecret = devSessionSecret
		warnings = append(warnings, "SESSION_SECRET not set; using built-in development secret")
	}

	if c.BotCredentialsKey == "" {
		if !c.IsLocal() {
			return nil, fmt.Errorf("BOT_CREDENTIALS_KEY is required in environment %q", c.Env)
		}
		c.BotCredentialsKey = devCredentialsKey
		warnings = append(warnings, "BOT_CREDENTIALS_KEY not set; using built-in development key")
	}

	if c.Auth.DevPassthrough {
		if !c.IsLocal() {
			return nil, fmt.Errorf("AUTH_DEV_PASSTHROUGH is only allowed in the %q environment", EnvLocal)
		}
		warnings = append(warnings, "AUTH_DEV_PASSTHROUGH enabled; unauthenticated requests act as the development principal")
	}

	if c.Auth.TokenTTL <= 0 {
		return nil, fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}

	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = defaultMaxUploadSize
	}

	switch c.Storage.Backend {
	case StorageBackendFilesystem:
		if c.Storage.UploadDir == "" {
			return nil, errors.New("STORAGE_UPLOAD_DIR is required for the filesystem backend")
		}
	case StorageBackendS3:
		if c.Storage.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required for the s3 backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (expected %q or %q)",
			c.Storage.Backend, StorageBackendFilesystem, StorageBackendS3)
	}

	return warnings, nil
}
