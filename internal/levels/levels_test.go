package levels

import (
	"math"
	"testing"

	"confluence-engine/internal/market"
)

// triangleWave oscillates 100 -> 110 -> 100 with a period of 8 bars
func triangleWave(periods int) []market.Candle {
	shape := []float64{100, 102.5, 105, 107.5, 110, 107.5, 105, 102.5}
	var out []market.Candle
	for p := 0; p < periods; p++ {
		for _, c := range shape {
			out = append(out, market.Candle{Open: c, High: c + 0.2, Low: c - 0.2, Close: c, Volume: 10})
		}
	}
	return append(out, market.Candle{Open: 100, High: 100.2, Low: 99.8, Close: 100, Volume: 10})
}

func findLevel(levels []Level, price float64) *Level {
	for i := range levels {
		if math.Abs(levels[i].Price-price) < 1e-6 {
			return &levels[i]
		}
	}
	return nil
}

func TestDetectMergesSwings(t *testing.T) {
	d := NewDetector(DefaultConfig())
	levels := d.Detect(triangleWave(5))

	if len(levels) != 5 {
		t.Fatalf("expected 5 levels (2 swing zones + 3 profile nodes), got %d: %+v", len(levels), levels)
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Price <= levels[i-1].Price {
			t.Fatalf("levels not sorted ascending: %+v", levels)
		}
	}

	support := findLevel(levels, 99.8)
	if support == nil {
		t.Fatalf("no merged support at 99.8: %+v", levels)
	}
	if support.Type != Support || support.Touches != 4 {
		t.Errorf("support = %+v, want type support with 4 touches", *support)
	}
	if support.Strength != 10 {
		t.Errorf("support strength = %v, want 10", support.Strength)
	}

	resistance := findLevel(levels, 110.2)
	if resistance == nil {
		t.Fatalf("no merged resistance at 110.2: %+v", levels)
	}
	if resistance.Type != Resistance || resistance.Touches != 3 {
		t.Errorf("resistance = %+v, want type resistance with 3 touches", *resistance)
	}
	if math.Abs(resistance.Strength-9) > 1e-9 {
		t.Errorf("resistance strength = %v, want 9", resistance.Strength)
	}

	for _, lvl := range levels {
		if lvl.Strength < 0 || lvl.Strength > 10 {
			t.Errorf("strength out of range: %+v", lvl)
		}
	}
}

func TestDetectShortWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())
	if got := d.Detect(triangleWave(1)[:5]); got != nil {
		t.Errorf("5 candles should yield no levels, got %+v", got)
	}
}

func TestMergeWeighting(t *testing.T) {
	merged := mergeCandidates([]candidate{
		{price: 100, touches: 1, volume: 30},
		{price: 100.2, touches: 1, volume: 10},
		{price: 105, touches: 2, volume: 5},
	}, 0.5)

	if len(merged) != 2 {
		t.Fatalf("expected 2 clusters, got %+v", merged)
	}
	// (100*30 + 100.2*10) / 40
	if math.Abs(merged[0].price-100.05) > 1e-9 {
		t.Errorf("merged price = %v, want 100.05", merged[0].price)
	}
	if merged[0].touches != 2 || merged[0].volume != 40 {
		t.Errorf("merged cluster = %+v", merged[0])
	}
}

func TestTolerancePctClamped(t *testing.T) {
	d := NewDetector(DefaultConfig())

	flat := []market.Candle{{Open: 100, High: 100, Low: 100, Close: 100}}
	if got := d.tolerancePct(flat); got != 0.3 {
		t.Errorf("flat tolerance = %v, want 0.3", got)
	}
	wide := []market.Candle{{Open: 100, High: 105, Low: 95, Close: 100}}
	if got := d.tolerancePct(wide); got != 1.0 {
		t.Errorf("wide tolerance = %v, want 1.0", got)
	}
}

func TestNearest(t *testing.T) {
	levels := []Level{{Price: 95}, {Price: 99}, {Price: 102}, {Price: 110}}

	support, resistance := Nearest(levels, 100)
	if support == nil || support.Price != 99 {
		t.Errorf("support = %+v, want 99", support)
	}
	if resistance == nil || resistance.Price != 102 {
		t.Errorf("resistance = %+v, want 102", resistance)
	}

	support, resistance = Nearest(levels, 120)
	if support == nil || support.Price != 110 || resistance != nil {
		t.Errorf("above all levels: support=%+v resistance=%+v", support, resistance)
	}

	detected := NewDetector(DefaultConfig()).Detect(triangleWave(5))
	_, res := Nearest(detected, 101)
	if res == nil || res.Price < 102 || res.Price > 103 {
		t.Errorf("nearest resistance above 101 = %+v, want the 102.5 volume node", res)
	}
}

func breakoutCandles(base market.Candle, last market.Candle) []market.Candle {
	out := make([]market.Candle, 25)
	for i := range out {
		out[i] = base
	}
	return append(out, last)
}

func TestBreakoutConfirmed(t *testing.T) {
	bc := NewBreakoutConfirmer(DefaultBreakoutConfig())

	candles := breakoutCandles(
		market.Candle{Open: 99.4, High: 99.6, Low: 99.3, Close: 99.5, Volume: 100},
		market.Candle{Open: 99.6, High: 100.7, Low: 99.55, Close: 100.6, Volume: 250},
	)
	sig := bc.Check(BreakoutInput{
		Level:     Level{Price: 100, Type: Resistance, Strength: 8},
		Candles:   candles,
		BidVolume: 160,
		AskVolume: 100,
		TapeDelta: 0.3,
	})
	if sig == nil {
		t.Fatal("expected a confirmed breakout")
	}
	if sig.Direction != market.Long {
		t.Errorf("direction = %s, want LONG", sig.Direction)
	}
	// 0.5 + 0.15 volume + 0.10 pressure + 0.08 tape + 0.08 strength + 0.07 close
	if math.Abs(sig.Confidence-0.98) > 1e-9 {
		t.Errorf("confidence = %v, want 0.98", sig.Confidence)
	}
	if sig.EntryZoneLow != 100 || math.Abs(sig.EntryZoneHigh-100.3) > 1e-9 {
		t.Errorf("entry zone = [%v, %v], want [100, 100.3]", sig.EntryZoneLow, sig.EntryZoneHigh)
	}
	if math.Abs(sig.InvalidationPrice-99.8) > 1e-9 {
		t.Errorf("invalidation = %v, want 99.8", sig.InvalidationPrice)
	}
}

func TestBreakdownConfirmed(t *testing.T) {
	bc := NewBreakoutConfirmer(DefaultBreakoutConfig())

	candles := breakoutCandles(
		market.Candle{Open: 100.6, High: 100.7, Low: 100.4, Close: 100.5, Volume: 100},
		market.Candle{Open: 100.4, High: 100.45, Low: 99.3, Close: 99.4, Volume: 200},
	)
	sig := bc.Check(BreakoutInput{
		Level:     Level{Price: 100, Type: Support, Strength: 5},
		Candles:   candles,
		BidVolume: 100,
		AskVolume: 130,
		TapeDelta: -0.5,
	})
	if sig == nil {
		t.Fatal("expected a confirmed breakdown")
	}
	if sig.Direction != market.Short {
		t.Errorf("direction = %s, want SHORT", sig.Direction)
	}
	if math.Abs(sig.Confidence-0.90) > 1e-9 {
		t.Errorf("confidence = %v, want 0.90", sig.Confidence)
	}
	if math.Abs(sig.InvalidationPrice-100.2) > 1e-9 {
		t.Errorf("invalidation = %v, want 100.2", sig.InvalidationPrice)
	}
}

func TestBreakoutRejected(t *testing.T) {
	bc := NewBreakoutConfirmer(DefaultBreakoutConfig())
	level := Level{Price: 100, Type: Resistance, Strength: 2}
	base := market.Candle{Open: 99.4, High: 99.6, Low: 99.3, Close: 99.5, Volume: 100}

	// crossed, but on thin volume with no book or tape support: 0.49
	weak := bc.Check(BreakoutInput{
		Level:     level,
		Candles:   breakoutCandles(base, market.Candle{Open: 99.6, High: 100.7, Low: 99.55, Close: 100.6, Volume: 80}),
		BidVolume: 100,
		AskVolume: 100,
		TapeDelta: -0.2,
	})
	if weak != nil {
		t.Errorf("weak breakout emitted with confidence %v", weak.Confidence)
	}

	// inside the 0.1% margin
	noCross := bc.Check(BreakoutInput{
		Level:   level,
		Candles: breakoutCandles(base, market.Candle{Open: 99.6, High: 100.1, Low: 99.55, Close: 100.05, Volume: 500}),
	})
	if noCross != nil {
		t.Error("close within the margin should not count as a cross")
	}

	if bc.Check(BreakoutInput{Level: level}) != nil {
		t.Error("no candles should not emit")
	}
}

func TestCheckAll(t *testing.T) {
	bc := NewBreakoutConfirmer(DefaultBreakoutConfig())
	candles := breakoutCandles(
		market.Candle{Open: 99.4, High: 99.6, Low: 99.3, Close: 99.5, Volume: 100},
		market.Candle{Open: 99.6, High: 100.7, Low: 99.55, Close: 100.6, Volume: 250},
	)

	got := bc.CheckAll(
		[]Level{{Price: 95, Type: Support, Strength: 6}, {Price: 100, Type: Resistance, Strength: 8}},
		BreakoutInput{Candles: candles, BidVolume: 160, AskVolume: 100, TapeDelta: 0.3},
	)
	if len(got) != 1 || got[0].Level.Price != 100 {
		t.Errorf("CheckAll = %+v, want only the 100 resistance", got)
	}
}
