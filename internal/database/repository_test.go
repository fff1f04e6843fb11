package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"confluence-engine/internal/gate"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

type execCall struct {
	sql  string
	args []any
}

// fakeQuerier records statements; QueryRow hands back a row scanning rowValues
type fakeQuerier struct {
	execs     []execCall
	execErr   error
	rowValues []any
	rowErr    error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported by fake")
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return fakeRow{values: f.rowValues, err: f.rowErr}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) {
			break
		}
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func testSignal() *signal.TradingSignal {
	ts := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	return &signal.TradingSignal{
		ID:         "5f0c6d1e-8d4f-4c1b-9a57-0a4f3c2b1e11",
		Timestamp:  ts,
		Symbol:     "BTCUSDT",
		Direction:  market.Long,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: [3]float64{102, 104, 106},
		RiskReward: 2,
		Confidence: 0.72,
		Timeframe:  market.TF15m,
		Triggers:   []string{"order book imbalance"},
		ExpiresAt:  ts.Add(time.Hour),
		Mode:       signal.ModeDefault,
	}
}

func TestSendSignalInsertsRow(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewRepositoryWith(q)

	sig := testSignal()
	if err := repo.SendSignal(context.Background(), sig); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}
	if len(q.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(q.execs))
	}
	call := q.execs[0]
	if !strings.Contains(call.sql, "ON CONFLICT (id) DO NOTHING") {
		t.Error("signal insert should be idempotent on id")
	}
	if len(call.args) != 16 {
		t.Fatalf("args = %d, want 16", len(call.args))
	}
	if call.args[0] != sig.ID || call.args[2] != "LONG" || call.args[3] != "15m" {
		t.Errorf("leading args = %v", call.args[:4])
	}
	if call.args[9] != 106.0 {
		t.Errorf("take_profit_3 = %v, want 106", call.args[9])
	}

	// the record keeps its own copy of triggers
	sig.Triggers[0] = "mutated"
	if call.args[12].([]string)[0] != "order book imbalance" {
		t.Error("triggers slice shared with the signal")
	}

	if err := repo.SendSignal(context.Background(), nil); err != nil || len(q.execs) != 1 {
		t.Error("nil signal should be ignored")
	}
}

func TestSendSignalWrapsError(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("connection reset")}
	err := NewRepositoryWith(q).SendSignal(context.Background(), testSignal())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("err = %v", err)
	}
}

func TestRecordOutcome(t *testing.T) {
	created := time.Date(2024, 8, 1, 13, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rowValues: []any{int64(7), created}}
	repo := NewRepositoryWith(q)

	rec, err := repo.RecordOutcome(context.Background(), gate.Outcome{
		Symbol:    "ETHUSDT",
		Direction: market.Short,
		PnL:       -12.5,
		Domains:   gate.DomainCalls{OrderBook: market.Short, Tape: market.Long, Candle: market.Neutral},
	})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if rec.ID != 7 || !rec.CreatedAt.Equal(created) {
		t.Errorf("returned row = %+v", rec)
	}
	if rec.ClosedAt.IsZero() {
		t.Error("closed_at should default to now")
	}

	args := q.execs[0].args
	if args[0].(*string) != nil || args[4].(*float64) != nil {
		t.Error("empty signal id and balance should be NULL")
	}
	if args[2] != "SHORT" || args[5] != "SHORT" || args[6] != "LONG" || args[7] != "NEUTRAL" {
		t.Errorf("direction args = %v", args[2:8])
	}
}

func TestRecordOutcomeError(t *testing.T) {
	q := &fakeQuerier{rowErr: errors.New("fk violation")}
	if _, err := NewRepositoryWith(q).RecordOutcome(context.Background(), gate.Outcome{Symbol: "X", Direction: market.Long}); err == nil {
		t.Error("expected error")
	}
}

func TestGetSignalNotFound(t *testing.T) {
	q := &fakeQuerier{rowErr: pgx.ErrNoRows}
	if _, err := NewRepositoryWith(q).GetSignal(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNewOutcomeRecordOptionalFields(t *testing.T) {
	closed := time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)
	rec := NewOutcomeRecord(gate.Outcome{SignalID: "abc", Balance: 950, ClosedAt: closed})
	if rec.SignalID == nil || *rec.SignalID != "abc" {
		t.Error("signal id lost")
	}
	if rec.Balance == nil || *rec.Balance != 950 {
		t.Error("balance lost")
	}
	if !rec.ClosedAt.Equal(closed) {
		t.Errorf("closed_at = %v", rec.ClosedAt)
	}
}

func TestRunMigrations(t *testing.T) {
	q := &fakeQuerier{}
	if err := runMigrations(context.Background(), q, zerolog.Nop()); err != nil {
		t.Fatalf("runMigrations: %v", err)
	}
	if len(q.execs) != len(migrations) {
		t.Errorf("executed %d of %d", len(q.execs), len(migrations))
	}
	for _, call := range q.execs {
		if !strings.Contains(call.sql, "IF NOT EXISTS") {
			t.Errorf("migration not idempotent: %s", call.sql)
		}
	}

	q = &fakeQuerier{execErr: errors.New("permission denied")}
	err := runMigrations(context.Background(), q, zerolog.Nop())
	if err == nil || !strings.HasPrefix(err.Error(), "migration 1 failed") {
		t.Errorf("err = %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 50}, {-3, 50}, {20, 20}, {10000, maxListLimit}}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
