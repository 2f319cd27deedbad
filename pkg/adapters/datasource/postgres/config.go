package postgres

import (
	"fmt"

	"github.com/spf13/cast"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	MaxConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a generic config map.
// Numeric fields accept JSON numbers, ints and numeric strings (env/YAML).
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort(),
		SSLMode:  DefaultSSLMode(),
		MaxConns: 10,
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if raw, ok := config["port"]; ok && raw != nil {
		port, err := cast.ToIntE(raw)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("invalid port %v", raw)
		}
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else if name, ok := config["name"].(string); ok && name != "" {
		// Support legacy "name" field
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	if raw, ok := config["max_connections"]; ok && raw != nil {
		n, err := cast.ToInt32E(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid max_connections %v", raw)
		}
		cfg.MaxConns = n
	}

	return cfg, nil
}
