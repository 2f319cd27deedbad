package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultApplicationName tags engine sessions in pg_stat_activity.
const DefaultApplicationName = "ekaya-schema"

// DB is the engine metadata store: a pgx pool over the engine's own
// PostgreSQL database (not the target datasource).
type DB struct {
	*pgxpool.Pool
}

// Config describes the metadata store pool. Zero values take the defaults
// applied by PoolConfig.
type Config struct {
	URL              string
	ApplicationName  string
	MaxConnections   int32
	MinConnections   int32
	StatementTimeout time.Duration
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
}

// PoolConfig parses the URL and applies pool limits and session settings.
// Metadata queries are short, so every session carries a statement timeout.
func (cfg *Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pc.MaxConns = orDefault(cfg.MaxConnections, 25)
	pc.MinConns = min(cfg.MinConnections, pc.MaxConns)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 30*time.Minute)

	params := pc.ConnConfig.RuntimeParams
	params["application_name"] = orDefault(cfg.ApplicationName, DefaultApplicationName)
	if timeout := orDefault(cfg.StatementTimeout, 30*time.Second); timeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)
	}
	return pc, nil
}

// NewConnection opens the metadata store and verifies it with a ping.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping engine database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
