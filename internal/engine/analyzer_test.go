package engine

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/levels"
	"confluence-engine/internal/market"
)

var testTime = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultSettings(), nil, zerolog.Nop())
}

// skewedBook puts heavy size on the with side
func skewedBook(dir market.Direction) *market.OrderBook {
	book := &market.OrderBook{Symbol: "BTCUSDT", Timestamp: testTime}
	bidQty, askQty := 50.0, 5.0
	if dir == market.Short {
		bidQty, askQty = askQty, bidQty
	}
	for i := 0; i < 10; i++ {
		step := 0.01 * float64(i+1)
		book.Bids = append(book.Bids, market.PriceLevel{Price: 100 - step, Qty: bidQty})
		book.Asks = append(book.Asks, market.PriceLevel{Price: 100 + step, Qty: askQty})
	}
	return book
}

func oneSidedTape(dir market.Direction, n int) []market.Trade {
	trades := make([]market.Trade, n)
	for i := range trades {
		trades[i] = market.Trade{
			Price: 100 + dir.Sign()*0.02*float64(i),
			Qty:   1,
			Time:  testTime.Add(time.Duration(i) * time.Second),
			IsBuy: dir == market.Long,
		}
	}
	return trades
}

// zigzag trends in dir: two steps with the trend, one against
func zigzag(dir market.Direction, n int) []market.Candle {
	candles := make([]market.Candle, n)
	price := 100.0
	for i := range candles {
		move := 1.0
		if i%2 == 1 {
			move = -0.5
		}
		move *= dir.Sign() * 0.1
		open := price
		price += move
		candles[i] = market.Candle{
			OpenTime:  testTime.Add(time.Duration(i-n) * 15 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.02,
			Low:       math.Min(open, price) - 0.02,
			Close:     price,
			Volume:    100,
			CloseTime: testTime.Add(time.Duration(i-n+1) * 15 * time.Minute),
		}
	}
	return candles
}

func fullSnapshot(dir market.Direction) market.Snapshot {
	candles := make(map[market.Timeframe][]market.Candle)
	for _, tf := range market.AllTimeframes {
		candles[tf] = zigzag(dir, 80)
	}
	return market.Snapshot{
		Symbol:    "BTCUSDT",
		OrderBook: skewedBook(dir),
		Trades:    oneSidedTape(dir, 20),
		Candles:   candles,
		FetchedAt: testTime,
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	a := newTestAnalyzer()

	bd := a.Analyze(context.Background(), market.Snapshot{Symbol: "BTCUSDT", Trades: oneSidedTape(market.Long, 3)})
	if bd.Forecast.Status != StatusInsufficient || bd.Forecast.Confidence != 0 {
		t.Fatalf("forecast = %+v", bd.Forecast)
	}
	for _, want := range []string{"order book unavailable", "3 trades, need 5", "0 15m candles, need 50"} {
		if !strings.Contains(bd.Forecast.Reason, want) {
			t.Errorf("reason %q missing %q", bd.Forecast.Reason, want)
		}
	}
	if bd.Signal != nil || bd.Confluence != nil {
		t.Error("insufficient data must not reach confluence")
	}
	if !bd.Tape.Insufficient {
		t.Error("tape score should still be reported")
	}
}

func TestAnalyzeThinBook(t *testing.T) {
	a := newTestAnalyzer()
	snap := fullSnapshot(market.Long)
	snap.OrderBook.Asks = snap.OrderBook.Asks[:3]

	bd := a.Analyze(context.Background(), snap)
	if bd.Forecast.Status != StatusInsufficient || !strings.Contains(bd.Forecast.Reason, "10 bids / 3 asks") {
		t.Errorf("forecast = %+v", bd.Forecast)
	}
	// candle domains were still scored
	if len(bd.Candles) != len(market.AllTimeframes) || bd.MTF.Evaluated == 0 {
		t.Errorf("candles=%d evaluated=%d", len(bd.Candles), bd.MTF.Evaluated)
	}
}

func TestAnalyzeDirectionalSnapshot(t *testing.T) {
	a := newTestAnalyzer()

	for _, dir := range []market.Direction{market.Long, market.Short} {
		bd := a.Analyze(context.Background(), fullSnapshot(dir))

		if bd.Forecast.Status == StatusInsufficient {
			t.Fatalf("%s: unexpected insufficient data: %s", dir, bd.Forecast.Reason)
		}
		if bd.OrderBook.Direction != dir || bd.Tape.Direction != dir {
			t.Errorf("%s: book=%s tape=%s", dir, bd.OrderBook.Direction, bd.Tape.Direction)
		}
		if bd.Confluence == nil {
			t.Fatalf("%s: confluence missing", dir)
		}
		if bd.Aux.MTFEvaluated != len(market.AllTimeframes) {
			t.Errorf("%s: evaluated %d timeframes", dir, bd.Aux.MTFEvaluated)
		}

		switch bd.Forecast.Status {
		case StatusSignal, StatusFallback:
			sig := bd.Signal
			if sig == nil || sig.Direction != bd.Forecast.Direction || sig.Direction != dir {
				t.Fatalf("%s: signal %+v vs forecast %+v", dir, sig, bd.Forecast)
			}
			s := dir.Sign()
			if !((sig.EntryPrice-sig.StopLoss)*s > 0 && (sig.TakeProfit[0]-sig.EntryPrice)*s > 0) {
				t.Errorf("%s: price ladder out of order: %+v", dir, sig)
			}
			if sig.Confidence < 0 || sig.Confidence > 1 || sig.Confidence > bd.Confluence.Confidence {
				t.Errorf("%s: confidence %v vs confluence %v", dir, sig.Confidence, bd.Confluence.Confidence)
			}
		case StatusNoSignal:
			if bd.Signal != nil || bd.Forecast.Confidence != 0 {
				t.Errorf("%s: no_signal carries %+v", dir, bd.Forecast)
			}
		}

		if _, err := json.Marshal(bd); err != nil {
			t.Errorf("%s: breakdown does not marshal: %v", dir, err)
		}
	}
}

func TestTimeframesIncludePrimary(t *testing.T) {
	s := DefaultSettings()
	s.MTF.Weights = s.MTF.Weights[:2] // 1d, 4h
	a := NewAnalyzer(s, nil, zerolog.Nop())

	tfs := a.Timeframes()
	if len(tfs) != 3 || tfs[2] != market.TF15m {
		t.Errorf("timeframes = %v", tfs)
	}
	if len(newTestAnalyzer().Timeframes()) != 6 {
		t.Error("default analyzer should fetch all six timeframes")
	}
}

func TestEstimateRiskReward(t *testing.T) {
	a := newTestAnalyzer()
	bd := &Breakdown{
		Price:  100,
		Levels: []levels.Level{{Price: 101.4, Type: levels.Resistance}},
	}

	// stop min(2*1.35, 0.7) = 0.7, room 1.4
	if rr := a.estimateRiskReward(bd, 2, market.Long); math.Abs(rr-2) > 1e-9 {
		t.Errorf("LONG R:R = %v, want 2", rr)
	}
	if rr := a.estimateRiskReward(bd, 2, market.Short); rr != 0 {
		t.Errorf("SHORT without support R:R = %v, want 0", rr)
	}
}

func TestFailedBreakout(t *testing.T) {
	a := newTestAnalyzer()
	lvls := []levels.Level{{Price: 100}}

	wickUp := []market.Candle{{Open: 99.7, High: 100.5, Low: 99.6, Close: 99.8}}
	if !a.failedBreakout(lvls, wickUp, market.Long) {
		t.Error("pierce and close back below should flag LONG")
	}
	if a.failedBreakout(lvls, wickUp, market.Short) {
		t.Error("upper wick is not a failed breakdown")
	}

	wickDown := []market.Candle{{Open: 100.3, High: 100.4, Low: 99.5, Close: 100.2}}
	if !a.failedBreakout(lvls, wickDown, market.Short) {
		t.Error("pierce and close back above should flag SHORT")
	}

	held := []market.Candle{{Open: 99.8, High: 100.6, Low: 99.7, Close: 100.4}}
	if a.failedBreakout(lvls, held, market.Long) {
		t.Error("close beyond the level is not a failure")
	}
}

func TestDomainLean(t *testing.T) {
	tests := []struct {
		dirs []market.Direction
		want market.Direction
	}{
		{[]market.Direction{market.Long, market.Long, market.Short}, market.Long},
		{[]market.Direction{market.Short, market.Neutral, market.Short}, market.Short},
		{[]market.Direction{market.Long, market.Neutral, market.Short}, market.Neutral},
	}
	for _, tt := range tests {
		if got := domainLean(tt.dirs...); got != tt.want {
			t.Errorf("domainLean(%v) = %s, want %s", tt.dirs, got, tt.want)
		}
	}
}
