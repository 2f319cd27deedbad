package mssql

import (
	"fmt"

	"github.com/spf13/cast"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use.
	// Options: "sql", "service_principal"
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	MaxOpenConns           int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map and auto-detects auth method.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
		MaxOpenConns:      10,
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if raw, ok := config["port"]; ok && raw != nil {
		port, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid port %v", raw)
		}
		cfg.Port = port
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else if name, ok := config["name"].(string); ok && name != "" {
		// Support legacy "name" field
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	// Optional connection settings. Strings are accepted for values that come
	// from env or YAML ("true", "false", "strict").
	if raw, ok := config["encrypt"]; ok && raw != nil {
		if s, isStr := raw.(string); isStr && s == "strict" {
			cfg.Encrypt = true
		} else {
			cfg.Encrypt = cast.ToBool(raw)
		}
	}

	if raw, ok := config["trust_server_certificate"]; ok && raw != nil {
		cfg.TrustServerCertificate = cast.ToBool(raw)
	}

	if raw, ok := config["connection_timeout"]; ok && raw != nil {
		timeout, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid connection_timeout %v", raw)
		}
		cfg.ConnectionTimeout = timeout
	}

	if raw, ok := config["max_connections"]; ok && raw != nil {
		n, err := cast.ToIntE(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid max_connections %v", raw)
		}
		cfg.MaxOpenConns = n
	}

	// Auto-detect auth method or use explicitly provided
	if authMethod, ok := config["auth_method"].(string); ok && authMethod != "" {
		cfg.AuthMethod = authMethod
	} else {
		// Priority: client_id > username/user (non-empty)
		if _, hasClientID := config["client_id"].(string); hasClientID {
			cfg.AuthMethod = "service_principal"
		} else if username, hasUsername := config["username"].(string); hasUsername && username != "" {
			cfg.AuthMethod = "sql"
		} else if user, hasUser := config["user"].(string); hasUser && user != "" {
			cfg.AuthMethod = "sql"
		} else {
			return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
		}
	}

	switch cfg.AuthMethod {
	case "sql":
		if username, ok := config["username"].(string); ok && username != "" {
			cfg.Username = username
		} else if user, ok := config["user"].(string); ok && user != "" {
			cfg.Username = user
		} else {
			return nil, fmt.Errorf("username is required for SQL authentication")
		}

		if password, ok := config["password"].(string); ok {
			cfg.Password = password
		}

	case "service_principal":
		if tenantID, ok := config["tenant_id"].(string); ok {
			cfg.TenantID = tenantID
		} else {
			return nil, fmt.Errorf("tenant_id is required for service principal authentication")
		}

		if clientID, ok := config["client_id"].(string); ok {
			cfg.ClientID = clientID
		} else {
			return nil, fmt.Errorf("client_id is required for service principal authentication")
		}

		if clientSecret, ok := config["client_secret"].(string); ok {
			cfg.ClientSecret = clientSecret
		} else {
			return nil, fmt.Errorf("client_secret is required for service principal authentication")
		}

	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case "sql":
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case "service_principal":
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}
