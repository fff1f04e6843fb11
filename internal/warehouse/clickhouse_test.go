package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/engine"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

type recordingExecer struct {
	queries []string
	args    [][]any
	err     error
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return nil, r.err
}

func sampleBreakdown() *engine.Breakdown {
	bd := &engine.Breakdown{
		Symbol:     "BTCUSDT",
		Timeframe:  market.TF15m,
		Price:      104500,
		AnalyzedAt: time.Date(2024, 8, 1, 12, 0, 0, 0, time.FixedZone("UTC+2", 2*3600)),
		Forecast: engine.Forecast{
			Status:     engine.StatusSignal,
			Direction:  market.Long,
			Confidence: 0.74,
		},
		Signal:      &signal.TradingSignal{ID: "sig-42", Symbol: "BTCUSDT"},
		FetchErrors: map[string]string{"trades": "timeout"},
	}
	bd.OrderBook.Direction = market.Long
	bd.OrderBook.Score = 0.6
	bd.Tape.Direction = market.Neutral
	bd.MTF.Direction = market.Long
	bd.MTF.Aligned = 3
	bd.MTF.Evaluated = 4
	return bd
}

func TestSaveBreakdownFlattensRow(t *testing.T) {
	db := &recordingExecer{}
	s := newBreakdownStore(db, zerolog.Nop())

	if err := s.SaveBreakdown(context.Background(), sampleBreakdown()); err != nil {
		t.Fatalf("SaveBreakdown: %v", err)
	}
	if len(db.args) != 1 {
		t.Fatalf("exec calls = %d", len(db.args))
	}
	args := db.args[0]
	if got := strings.Count(insertBreakdown, "?"); got != len(args) {
		t.Fatalf("placeholders %d, args %d", got, len(args))
	}

	if ts := args[0].(time.Time); ts.Location() != time.UTC || ts.Hour() != 10 {
		t.Errorf("analyzed_at = %v, want normalized to UTC", ts)
	}
	if args[3] != "signal" || args[4] != "LONG" || args[5] != 0.74 {
		t.Errorf("forecast columns = %v", args[3:6])
	}
	if args[13] != uint8(3) || args[14] != uint8(4) {
		t.Errorf("mtf columns = %v", args[13:15])
	}
	if args[15] != "sig-42" || args[16] != uint8(1) {
		t.Errorf("signal/fetch columns = %v", args[15:17])
	}

	var decoded engine.Breakdown
	if err := json.Unmarshal([]byte(args[17].(string)), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Symbol != "BTCUSDT" || decoded.Signal == nil {
		t.Errorf("payload = %+v", decoded)
	}
}

func TestSaveBreakdownWithoutSignal(t *testing.T) {
	db := &recordingExecer{}
	s := newBreakdownStore(db, zerolog.Nop())
	bd := sampleBreakdown()
	bd.Signal = nil

	if err := s.SaveBreakdown(context.Background(), bd); err != nil {
		t.Fatal(err)
	}
	if db.args[0][15] != "" {
		t.Errorf("signal_id = %v, want empty", db.args[0][15])
	}
	if err := s.SaveBreakdown(context.Background(), nil); err != nil || len(db.args) != 1 {
		t.Error("nil breakdown should be ignored")
	}
}

func TestSaveBreakdownError(t *testing.T) {
	db := &recordingExecer{err: errors.New("table is read only")}
	err := newBreakdownStore(db, zerolog.Nop()).SaveBreakdown(context.Background(), sampleBreakdown())
	if !errors.Is(err, db.err) {
		t.Errorf("err = %v, want wrapped exec error", err)
	}
}

func TestInitSchema(t *testing.T) {
	db := &recordingExecer{}
	s := newBreakdownStore(db, zerolog.Nop())
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.queries) != len(Schema) || !strings.Contains(db.queries[0], "IF NOT EXISTS") {
		t.Errorf("queries = %v", db.queries)
	}
	if s.Name() != "clickhouse" || s.Close() != nil {
		t.Error("unexpected name or close error")
	}
}
