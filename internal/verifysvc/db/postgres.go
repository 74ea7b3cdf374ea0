package db

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxConns = 10

var DB *pgxpool.Pool

// poolConfig builds the pool settings for the verify workload: every
// request touches the attempt ledger, so a small bounded pool with a
// short health-check period beats pgxpool's defaults. VERIFY_DB_MAX_CONNS
// overrides the connection cap.
func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = defaultMaxConns
	if raw := os.Getenv("VERIFY_DB_MAX_CONNS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MaxConns = int32(n)
		}
	}
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	return cfg, nil
}

// Connect initializes the shared connection pool from POSTGRES_URL.
func Connect() (*pgxpool.Pool, error) {
	cfg, err := poolConfig(os.Getenv("POSTGRES_URL"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	DB = pool

	return pool, nil
}

// ClosePool is for graceful shutdown
func ClosePool() {
	if DB != nil {
		DB.Close()
	}
}
