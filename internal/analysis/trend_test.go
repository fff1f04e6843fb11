package analysis

import (
	"testing"

	"confluence-engine/internal/market"
)

func zigzag(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10}
	}
	return out
}

func TestFindSwings(t *testing.T) {
	ta := NewTrendAnalyzer(2)
	candles := zigzag([]float64{100, 102, 104, 102, 100, 103, 106, 103, 101, 104, 108, 105, 103})

	highs := ta.FindSwingHighs(candles)
	if len(highs) != 3 {
		t.Fatalf("expected 3 swing highs, got %d: %+v", len(highs), highs)
	}
	if highs[0].CandleIndex != 2 || highs[2].CandleIndex != 10 {
		t.Errorf("unexpected swing high indexes: %+v", highs)
	}

	lows := ta.FindSwingLows(candles)
	if len(lows) != 2 {
		t.Fatalf("expected 2 swing lows, got %d: %+v", len(lows), lows)
	}
}

func TestAnalyzeStructure(t *testing.T) {
	ta := NewTrendAnalyzer(2)

	up := ta.AnalyzeStructure(zigzag([]float64{100, 102, 104, 102, 100, 103, 106, 103, 101, 104, 108, 105, 103}))
	if up.Trend != market.Long {
		t.Errorf("rising swings: trend = %s, want LONG", up.Trend)
	}
	if up.HigherHighs != 2 || up.HigherLows != 1 {
		t.Errorf("HH=%d HL=%d, want 2/1", up.HigherHighs, up.HigherLows)
	}

	down := ta.AnalyzeStructure(zigzag([]float64{110, 108, 106, 108, 110, 107, 104, 107, 109, 106, 102, 105, 107}))
	if down.Trend != market.Short {
		t.Errorf("falling swings: trend = %s, want SHORT", down.Trend)
	}

	short := ta.AnalyzeStructure(zigzag([]float64{100, 101}))
	if short.Trend != market.Neutral {
		t.Errorf("short window: trend = %s, want NEUTRAL", short.Trend)
	}
}

func TestVolumeProfile(t *testing.T) {
	va := NewVolumeAnalyzer(10)

	var candles []market.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, market.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 10})
	}
	candles = append(candles,
		market.Candle{Open: 110, High: 110.5, Low: 109.5, Close: 110, Volume: 100},
		market.Candle{Open: 110, High: 110.5, Low: 109.5, Close: 110, Volume: 100},
	)

	top := va.TopNodes(candles, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(top))
	}
	if top[0].Mid() < 105 {
		t.Errorf("highest-volume node mid = %v, want near 110", top[0].Mid())
	}
	if top[0].Volume != 200 {
		t.Errorf("top node volume = %v, want 200", top[0].Volume)
	}

	if va.Profile(nil) != nil {
		t.Error("empty input should produce no profile")
	}
}
