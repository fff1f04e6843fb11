package indicators

import (
	"math"
	"testing"
	"time"

	"confluence-engine/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   100,
		}
	}
	return out
}

func TestSMAAndEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 5); got != 3 {
		t.Errorf("SMA = %v, want 3", got)
	}
	if got := SMA(values, 6); got != 0 {
		t.Errorf("SMA with short input = %v, want 0", got)
	}

	flat := []float64{10, 10, 10, 10, 10, 10, 10, 10}
	if got := EMA(flat, 3); got != 10 {
		t.Errorf("EMA of flat series = %v, want 10", got)
	}
	if got := len(EMASeries(flat, 3)); got != 6 {
		t.Errorf("EMASeries length = %d, want 6", got)
	}
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	if got := RSI(candlesFromCloses(rising), 14); got != 100 {
		t.Errorf("RSI of rising series = %v, want 100", got)
	}

	if got := RSI(candlesFromCloses(rising[:10]), 14); got != 50 {
		t.Errorf("RSI with insufficient data = %v, want 50", got)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	if got := RSI(candlesFromCloses(falling), 14); got > 1 {
		t.Errorf("RSI of falling series = %v, want ~0", got)
	}
}

func TestATR(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	if got := ATR(candlesFromCloses(flat), 14); math.Abs(got-2) > 1e-9 {
		t.Errorf("ATR = %v, want 2", got)
	}
	if got := ATR(candlesFromCloses(flat[:5]), 14); got != 0 {
		t.Errorf("ATR with insufficient data = %v, want 0", got)
	}
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
	}
	res := MACD(candlesFromCloses(flat), 12, 26, 9)
	if !res.Valid {
		t.Fatal("MACD should be valid with 60 bars")
	}
	if res.Histogram != 0 || res.Crossed() != 0 {
		t.Errorf("flat MACD histogram = %v cross = %d, want 0/0", res.Histogram, res.Crossed())
	}

	if MACD(candlesFromCloses(flat[:20]), 12, 26, 9).Valid {
		t.Error("MACD should be invalid with 20 bars")
	}

	cross := MACDResult{PrevHistogram: -0.2, Histogram: 0.1, Valid: true}
	if cross.Crossed() != 1 {
		t.Error("Should detect bullish histogram cross")
	}
}

func TestBollingerAndVolume(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	candles := candlesFromCloses(flat)

	bb := Bollinger(candles, 20, 2)
	if bb.Upper != 100 || bb.Lower != 100 || bb.Bandwidth != 0 {
		t.Errorf("flat bands = %+v, want collapsed at 100", bb)
	}
	if got := len(BandwidthSeries(candles, 20, 2, 5)); got != 5 {
		t.Errorf("BandwidthSeries length = %d, want 5", got)
	}

	candles[len(candles)-1].Volume = 200
	if got := VolumeRatio(candles, 20); got != 2 {
		t.Errorf("VolumeRatio = %v, want 2", got)
	}
	if got := VolumeRatio(candles[:1], 20); got != 0 {
		t.Errorf("VolumeRatio of single candle = %v, want 0", got)
	}
	if got := AverageRangePct(candles); math.Abs(got-2) > 1e-9 {
		t.Errorf("AverageRangePct = %v, want 2", got)
	}
}
