package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-schema.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Engine metadata store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Target is the database where physical user tables live.
	Target TargetConfig `yaml:"target"`

	Schema SchemaConfig `yaml:"schema"`

	// Redis is optional; when set, schema locks are shared across processes.
	Redis RedisConfig `yaml:"redis"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_schema"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// Metadata statements are cancelled after this long; 0 keeps the pool default, negative disables.
	StatementTimeoutMS int `yaml:"statement_timeout_ms" env:"PGSTATEMENT_TIMEOUT_MS" env-default:"30000"`
}

// TargetConfig describes the datasource that physical tables are created in.
type TargetConfig struct {
	Type           string `yaml:"type" env:"TARGET_TYPE" env-default:"postgres"` // postgres or mssql
	Host           string `yaml:"host" env:"TARGET_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"TARGET_PORT" env-default:"0"` // 0 = adapter default
	User           string `yaml:"user" env:"TARGET_USER" env-default:""`
	Password       string `yaml:"-" env:"TARGET_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"TARGET_DATABASE" env-default:""`
	SSLMode        string `yaml:"ssl_mode" env:"TARGET_SSL_MODE" env-default:""`
	Encrypt        string `yaml:"encrypt" env:"TARGET_ENCRYPT" env-default:""`
	MaxConnections int    `yaml:"max_connections" env:"TARGET_MAX_CONNECTIONS" env-default:"10"`
}

// SchemaConfig tunes the schema engine services.
type SchemaConfig struct {
	// DefaultConversionStrategy applies when a retype request names none.
	DefaultConversionStrategy string `yaml:"default_conversion_strategy" env:"SCHEMA_DEFAULT_CONVERSION_STRATEGY" env-default:"clear_invalid"`
	RegistryCacheMaxCost      int64  `yaml:"registry_cache_max_cost" env:"SCHEMA_REGISTRY_CACHE_MAX_COST" env-default:"1000"`
	ImportBatchSize           int    `yaml:"import_batch_size" env:"SCHEMA_IMPORT_BATCH_SIZE" env-default:"500"`
	DetectionSampleSize       int    `yaml:"detection_sample_size" env:"SCHEMA_DETECTION_SAMPLE_SIZE" env-default:"100"`
	// LockWaitMS is how long a mutation waits for a busy table before
	// failing. Zero fails immediately.
	LockWaitMS       int `yaml:"lock_wait_ms" env:"SCHEMA_LOCK_WAIT_MS" env-default:"0"`
	MigrationRetries int `yaml:"migration_retries" env:"SCHEMA_MIGRATION_RETRIES" env-default:"3"`
	// ManifestPath optionally points at a YAML table manifest applied at startup.
	ManifestPath string `yaml:"manifest_path" env:"SCHEMA_MANIFEST_PATH" env-default:""`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host           string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port           int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password       string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB             int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds" env:"REDIS_LOCK_TTL_SECONDS" env-default:"300"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := c.Target.validate(); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}
	if err := c.Schema.validate(); err != nil {
		return fmt.Errorf("invalid schema configuration: %w", err)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (t *TargetConfig) validate() error {
	t.Type = strings.ToLower(strings.TrimSpace(t.Type))
	if t.Type == "sqlserver" {
		t.Type = "mssql"
	}
	switch t.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported type %q (want postgres or mssql)", t.Type)
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range", t.Port)
	}
	return nil
}

func (s *SchemaConfig) validate() error {
	switch s.DefaultConversionStrategy {
	case "clear_invalid", "fail_on_invalid":
	default:
		return fmt.Errorf("default_conversion_strategy must be clear_invalid or fail_on_invalid, got %q", s.DefaultConversionStrategy)
	}
	if s.DetectionSampleSize < 1 || s.DetectionSampleSize > 100 {
		return fmt.Errorf("detection_sample_size must be between 1 and 100, got %d", s.DetectionSampleSize)
	}
	if s.ImportBatchSize < 1 {
		return fmt.Errorf("import_batch_size must be positive, got %d", s.ImportBatchSize)
	}
	if s.RegistryCacheMaxCost < 1 {
		return fmt.Errorf("registry_cache_max_cost must be positive, got %d", s.RegistryCacheMaxCost)
	}
	if s.LockWaitMS < 0 || s.MigrationRetries < 0 {
		return fmt.Errorf("lock_wait_ms and migration_retries cannot be negative")
	}
	return nil
}

// URL returns a PostgreSQL connection URL for pgxpool and golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     ResolveHostForDocker(c.Host) + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// AdapterConfig returns the target settings as a datasource adapter
// configuration map. Empty optional values are omitted so adapter defaults
// apply.
func (t *TargetConfig) AdapterConfig() map[string]any {
	cfg := map[string]any{
		"host":            t.Host,
		"user":            t.User,
		"password":        t.Password,
		"database":        t.Database,
		"max_connections": t.MaxConnections,
	}
	if t.Port != 0 {
		cfg["port"] = t.Port
	}
	if t.SSLMode != "" {
		cfg["ssl_mode"] = t.SSLMode
	}
	if t.Encrypt != "" {
		cfg["encrypt"] = t.Encrypt
	}
	return cfg
}
