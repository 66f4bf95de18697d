package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns   = 20
	minConnections    = 0
	maxConnIdleTime   = 2 * time.Minute
	maxConnLifetime   = 45 * time.Minute
	connectionTimeout = 3 * time.Second
)

var newPoolWithConfig = pgxpool.NewWithConfig

// NewPool opens a pgx pool; maxConns <= 0 keeps the default size.
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = minConnections
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.MaxConnLifetime = maxConnLifetime

	pool, err := newPoolWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func Ping(parent context.Context, p pinger) error {
	ctx, cancel := context.WithTimeout(parent, connectionTimeout)
	defer cancel()
	return p.Ping(ctx)
}
