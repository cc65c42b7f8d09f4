// Package store is the PostgreSQL data store: read-only query execution for
// generated SQL, the entity directory, schema migrations and the bulk loader
// used by the refresh job.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns         = 10
	defaultMinConns         = 2
	defaultStatementTimeout = 10 * time.Second
	defaultMaxRows          = 1000
	defaultConnectTimeout   = 5 * time.Second
)

// ErrUnavailable is returned when the database cannot be reached.
var ErrUnavailable = errors.New("data store unavailable")

type Config struct {
	Logger *slog.Logger
	DSN    string

	MaxConns int32
	MinConns int32

	// StatementTimeout bounds each generated query.
	StatementTimeout time.Duration

	// MaxRows caps the rows returned by Query; the result is marked truncated.
	MaxRows int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.DSN == "" {
		return errors.New("dsn is required")
	}
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.MinConns <= 0 {
		c.MinConns = defaultMinConns
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = defaultStatementTimeout
	}
	if c.MaxRows <= 0 {
		c.MaxRows = defaultMaxRows
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	cfg  Config
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create postgres pool: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping postgres: %v", ErrUnavailable, err)
	}

	cfg.Logger.Info("store: connected to postgres",
		"host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database, "maxConns", cfg.MaxConns)

	return &Store{log: cfg.Logger, cfg: cfg, pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Pool exposes the underlying pool for tests and migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
