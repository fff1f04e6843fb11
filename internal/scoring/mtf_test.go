package scoring

import (
	"math"
	"testing"

	"confluence-engine/internal/levels"
	"confluence-engine/internal/market"
)

func reading(dir market.Direction, score float64) CandleScore {
	cs := CandleScore{DomainScore: market.NeutralScore(false)}
	cs.Direction = dir
	cs.Score = score
	return cs
}

func swingCandles(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10}
	}
	return out
}

func TestMTFFullAlignment(t *testing.T) {
	agg := NewMTFAggregator(DefaultMTFConfig())

	scores := map[market.Timeframe]CandleScore{}
	for _, tf := range market.AllTimeframes {
		scores[tf] = reading(market.Long, 4)
	}
	res := agg.Aggregate(scores, nil)

	if res.Direction != market.Long {
		t.Fatalf("direction = %s, want LONG", res.Direction)
	}
	if res.Aligned != 6 || res.Evaluated != 6 {
		t.Errorf("aligned=%d evaluated=%d, want 6/6", res.Aligned, res.Evaluated)
	}
	if math.Abs(res.Score-4) > 1e-9 {
		t.Errorf("score = %v, want 4", res.Score)
	}
	if math.Abs(res.Confidence-1) > 1e-9 {
		t.Errorf("confidence = %v, want 1", res.Confidence)
	}
}

func TestMTFMarginKeepsNeutral(t *testing.T) {
	agg := NewMTFAggregator(DefaultMTFConfig())

	res := agg.Aggregate(map[market.Timeframe]CandleScore{
		market.TF1d: reading(market.Long, 5),
		market.TF4h: reading(market.Short, 5),
	}, nil)

	// 0.25 vs 0.20 is inside the 0.15 margin
	if res.Direction != market.Neutral || res.Score != 0 {
		t.Errorf("got %s/%v, want NEUTRAL/0", res.Direction, res.Score)
	}
	if res.Evaluated != 2 {
		t.Errorf("evaluated = %d, want 2", res.Evaluated)
	}
}

func TestMTFMissingTimeframes(t *testing.T) {
	agg := NewMTFAggregator(DefaultMTFConfig())

	insufficient := reading(market.Neutral, 0)
	insufficient.Insufficient = true

	res := agg.Aggregate(map[market.Timeframe]CandleScore{
		market.TF15m: reading(market.Long, 3),
		market.TF5m:  reading(market.Long, 5),
		market.TF1h:  insufficient,
	}, nil)

	if res.Direction != market.Long {
		t.Fatalf("direction = %s, want LONG", res.Direction)
	}
	if res.Evaluated != 2 || res.Aligned != 2 {
		t.Errorf("evaluated=%d aligned=%d, want 2/2", res.Evaluated, res.Aligned)
	}
	// (0.15*3 + 0.10*5) / 0.25
	if math.Abs(res.Score-3.8) > 1e-9 {
		t.Errorf("score = %v, want 3.8", res.Score)
	}
	if len(res.Readings) != 6 {
		t.Errorf("readings = %d, want one per configured timeframe", len(res.Readings))
	}

	empty := agg.Aggregate(nil, nil)
	if !empty.Insufficient || empty.Direction != market.Neutral {
		t.Errorf("no timeframes: insufficient=%v direction=%s", empty.Insufficient, empty.Direction)
	}
}

func TestMTFStructureOverride(t *testing.T) {
	cfg := DefaultMTFConfig()
	cfg.StructureSwing = 2
	agg := NewMTFAggregator(cfg)

	up := swingCandles([]float64{100, 102, 104, 102, 100, 103, 106, 103, 101, 104, 108, 105, 103})
	down := swingCandles([]float64{110, 108, 106, 108, 110, 107, 104, 107, 109, 106, 102, 105, 107})

	res := agg.Aggregate(
		map[market.Timeframe]CandleScore{market.TF1h: reading(market.Neutral, 0)},
		map[market.Timeframe][]market.Candle{market.TF1h: up, market.TF1d: down},
	)

	var row TimeframeReading
	for _, r := range res.Readings {
		if r.Timeframe == market.TF1h {
			row = r
		}
	}
	if !row.StructureOverride || row.Direction != market.Long {
		t.Errorf("1h reading = %+v, want structure override to LONG", row)
	}
	if res.Direction != market.Long {
		t.Errorf("direction = %s, want LONG", res.Direction)
	}
	if res.HTFTrend != market.Short {
		t.Errorf("HTF trend = %s, want SHORT from the daily structure", res.HTFTrend)
	}
}

func TestMTFStructureUsesLevelLookback(t *testing.T) {
	if got, want := DefaultMTFConfig().StructureSwing, levels.DefaultConfig().SwingLookback; got != want {
		t.Errorf("structure swing = %d, want level lookback %d", got, want)
	}

	// swings two bars apart are noise at the default lookback
	agg := NewMTFAggregator(DefaultMTFConfig())
	up := swingCandles([]float64{100, 102, 104, 102, 100, 103, 106, 103, 101, 104, 108, 105, 103})
	if got := agg.StructureTrend(up); got != market.Neutral {
		t.Errorf("short-swing structure = %s, want NEUTRAL", got)
	}
}
