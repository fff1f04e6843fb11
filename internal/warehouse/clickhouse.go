// Package warehouse appends every analysis breakdown to ClickHouse for
// offline calibration of weights and thresholds.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"confluence-engine/config"
	"confluence-engine/internal/engine"
)

// execer is the part of *sql.DB the store writes through
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Schema is applied by InitSchema; every statement is idempotent
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_breakdowns (
		analyzed_at DateTime64(3, 'UTC'),
		symbol LowCardinality(String),
		timeframe LowCardinality(String),
		status LowCardinality(String),
		direction LowCardinality(String),
		confidence Float64,
		price Float64,
		orderbook_direction LowCardinality(String),
		orderbook_score Float64,
		tape_direction LowCardinality(String),
		tape_score Float64,
		candle_direction LowCardinality(String),
		candle_score Float64,
		mtf_aligned UInt8,
		mtf_evaluated UInt8,
		signal_id String,
		fetch_errors UInt8,
		payload String
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(analyzed_at)
	ORDER BY (symbol, analyzed_at)`,
}

const insertBreakdown = `INSERT INTO analysis_breakdowns (
	analyzed_at, symbol, timeframe, status, direction, confidence, price,
	orderbook_direction, orderbook_score, tape_direction, tape_score,
	candle_direction, candle_score, mtf_aligned, mtf_evaluated,
	signal_id, fetch_errors, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// BreakdownStore is a scheduler BreakdownSink
type BreakdownStore struct {
	db     execer
	closer func() error
	logger zerolog.Logger
}

// Open connects to ClickHouse over the native protocol and pings it
func Open(cfg config.ClickHouseConfig, logger zerolog.Logger) (*BreakdownStore, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := newBreakdownStore(db, logger)
	s.closer = db.Close
	s.logger.Info().Str("address", cfg.Address).Str("database", cfg.Database).Msg("ClickHouse connected")
	return s, nil
}

func newBreakdownStore(db execer, logger zerolog.Logger) *BreakdownStore {
	return &BreakdownStore{
		db:     db,
		logger: logger.With().Str("component", "warehouse").Logger(),
	}
}

// InitSchema creates the tables if they do not exist
func (s *BreakdownStore) InitSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Name identifies the sink
func (s *BreakdownStore) Name() string { return "clickhouse" }

// SaveBreakdown appends one row per analysis. The full breakdown is kept as
// JSON next to the flattened columns.
func (s *BreakdownStore) SaveBreakdown(ctx context.Context, bd *engine.Breakdown) error {
	if bd == nil {
		return nil
	}
	payload, err := json.Marshal(bd)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertBreakdown, rowArgs(bd, payload)...)
	if err != nil {
		return fmt.Errorf("insert breakdown %s: %w", bd.Symbol, err)
	}
	return nil
}

func rowArgs(bd *engine.Breakdown, payload []byte) []any {
	signalID := ""
	if bd.HasSignal() {
		signalID = bd.Signal.ID
	}
	return []any{
		bd.AnalyzedAt.UTC(),
		bd.Symbol,
		string(bd.Timeframe),
		string(bd.Forecast.Status),
		string(bd.Forecast.Direction),
		bd.Forecast.Confidence,
		bd.Price,
		string(bd.OrderBook.Direction),
		bd.OrderBook.Score,
		string(bd.Tape.Direction),
		bd.Tape.Score,
		string(bd.MTF.Direction),
		bd.MTF.Score,
		uint8(bd.MTF.Aligned),
		uint8(bd.MTF.Evaluated),
		signalID,
		uint8(len(bd.FetchErrors)),
		string(payload),
	}
}

// Close closes the connection pool
func (s *BreakdownStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
