package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"confluence-engine/internal/gate"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

const maxListLimit = 500

// Repository provides data access methods
type Repository struct {
	q Querier
}

// NewRepository creates a new repository over the pool
func NewRepository(db *DB) *Repository {
	return &Repository{q: db.Pool}
}

// NewRepositoryWith creates a repository over any Querier
func NewRepositoryWith(q Querier) *Repository {
	return &Repository{q: q}
}

// Name identifies the repository as a signal sink
func (r *Repository) Name() string { return "postgres" }

// SendSignal persists a generated signal. Re-sending the same ID is a no-op.
func (r *Repository) SendSignal(ctx context.Context, sig *signal.TradingSignal) error {
	if sig == nil {
		return nil
	}
	return r.CreateSignal(ctx, NewSignalRecord(sig))
}

// ============================================================================
// SIGNALS
// ============================================================================

const insertSignal = `
	INSERT INTO signals (id, symbol, direction, timeframe, mode, entry_price, stop_loss,
		take_profit_1, take_profit_2, take_profit_3, risk_reward, confidence, triggers,
		auto_tradable, timestamp, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO NOTHING
`

// CreateSignal inserts a signal row
func (r *Repository) CreateSignal(ctx context.Context, rec *SignalRecord) error {
	_, err := r.q.Exec(ctx, insertSignal,
		rec.ID, rec.Symbol, string(rec.Direction), string(rec.Timeframe), string(rec.Mode),
		rec.EntryPrice, rec.StopLoss, rec.TakeProfit[0], rec.TakeProfit[1], rec.TakeProfit[2],
		rec.RiskReward, rec.Confidence, rec.Triggers, rec.AutoTradable, rec.Timestamp, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", rec.ID, err)
	}
	return nil
}

const selectSignal = `
	SELECT id, symbol, direction, timeframe, mode, entry_price, stop_loss,
	       take_profit_1, take_profit_2, take_profit_3, risk_reward, confidence,
	       triggers, auto_tradable, timestamp, expires_at, created_at
	FROM signals
`

// GetSignal retrieves one signal by ID
func (r *Repository) GetSignal(ctx context.Context, id string) (*SignalRecord, error) {
	rec, err := scanSignal(r.q.QueryRow(ctx, selectSignal+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// GetRecentSignals retrieves the newest signals, optionally for one symbol
func (r *Repository) GetRecentSignals(ctx context.Context, symbol string, limit int) ([]*SignalRecord, error) {
	limit = clampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if symbol == "" {
		rows, err = r.q.Query(ctx, selectSignal+` ORDER BY timestamp DESC LIMIT $1`, limit)
	} else {
		rows, err = r.q.Query(ctx, selectSignal+` WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2`, symbol, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSignal(row pgx.Row) (*SignalRecord, error) {
	var (
		rec                        SignalRecord
		direction, timeframe, mode string
	)
	err := row.Scan(
		&rec.ID, &rec.Symbol, &direction, &timeframe, &mode, &rec.EntryPrice, &rec.StopLoss,
		&rec.TakeProfit[0], &rec.TakeProfit[1], &rec.TakeProfit[2], &rec.RiskReward, &rec.Confidence,
		&rec.Triggers, &rec.AutoTradable, &rec.Timestamp, &rec.ExpiresAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Direction = market.Direction(direction)
	rec.Timeframe = market.Timeframe(timeframe)
	rec.Mode = signal.Mode(mode)
	return &rec, nil
}

// ============================================================================
// TRADE OUTCOMES
// ============================================================================

// RecordOutcome persists a closed trade and returns its row
func (r *Repository) RecordOutcome(ctx context.Context, o gate.Outcome) (*OutcomeRecord, error) {
	rec := NewOutcomeRecord(o)
	query := `
		INSERT INTO trade_outcomes (signal_id, symbol, direction, pnl, balance,
			orderbook_call, tape_call, candle_call, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		rec.SignalID, rec.Symbol, string(rec.Direction), rec.PnL, rec.Balance,
		string(rec.Domains.OrderBook), string(rec.Domains.Tape), string(rec.Domains.Candle), rec.ClosedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert trade outcome: %w", err)
	}
	return rec, nil
}

// GetRecentOutcomes retrieves the newest closed trades
func (r *Repository) GetRecentOutcomes(ctx context.Context, limit int) ([]*OutcomeRecord, error) {
	query := `
		SELECT id, signal_id, symbol, direction, pnl, balance,
		       COALESCE(orderbook_call, ''), COALESCE(tape_call, ''), COALESCE(candle_call, ''),
		       closed_at, created_at
		FROM trade_outcomes
		ORDER BY closed_at DESC
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query trade outcomes: %w", err)
	}
	defer rows.Close()

	var out []*OutcomeRecord
	for rows.Next() {
		var (
			rec                                   OutcomeRecord
			direction, bookCall, tapeCall, candle string
		)
		err := rows.Scan(
			&rec.ID, &rec.SignalID, &rec.Symbol, &direction, &rec.PnL, &rec.Balance,
			&bookCall, &tapeCall, &candle, &rec.ClosedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.Direction = market.Direction(direction)
		rec.Domains = gate.DomainCalls{
			OrderBook: market.Direction(bookCall),
			Tape:      market.Direction(tapeCall),
			Candle:    market.Direction(candle),
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
