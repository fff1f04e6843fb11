package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"confluence-engine/config"
)

// Querier is the subset of pgxpool.Pool the repository uses
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{Pool: pool, logger: logger.With().Str("component", "database").Logger()}
	db.logger.Info().Str("database", cfg.DBName).Msg("Connected to PostgreSQL")
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// migrations are idempotent and run in order on every start
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id UUID PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		timeframe VARCHAR(4) NOT NULL,
		mode VARCHAR(10) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		stop_loss DECIMAL(20, 8) NOT NULL,
		take_profit_1 DECIMAL(20, 8) NOT NULL,
		take_profit_2 DECIMAL(20, 8) NOT NULL,
		take_profit_3 DECIMAL(20, 8) NOT NULL,
		risk_reward DECIMAL(10, 4) NOT NULL,
		confidence DECIMAL(6, 4) NOT NULL,
		triggers TEXT[],
		auto_tradable BOOLEAN NOT NULL DEFAULT FALSE,
		timestamp TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp DESC)`,

	`CREATE TABLE IF NOT EXISTS trade_outcomes (
		id BIGSERIAL PRIMARY KEY,
		signal_id UUID REFERENCES signals(id) ON DELETE SET NULL,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(8) NOT NULL,
		pnl DECIMAL(20, 8) NOT NULL,
		balance DECIMAL(20, 8),
		orderbook_call VARCHAR(8),
		tape_call VARCHAR(8),
		candle_call VARCHAR(8),
		closed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_symbol ON trade_outcomes(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_closed_at ON trade_outcomes(closed_at DESC)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	return runMigrations(ctx, db.Pool, db.logger)
}

func runMigrations(ctx context.Context, q Querier, logger zerolog.Logger) error {
	for i, migration := range migrations {
		if _, err := q.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	logger.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
