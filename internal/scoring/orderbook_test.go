package scoring

import (
	"math"
	"math/rand"
	"testing"

	"confluence-engine/internal/market"
)

// symmetricBook places bids and asks at mirrored distances from 100
func symmetricBook(bidQty, askQty []float64) *market.OrderBook {
	book := &market.OrderBook{Symbol: "BTCUSDT"}
	for i, q := range bidQty {
		book.Bids = append(book.Bids, market.PriceLevel{Price: 100 - (0.007 + 0.013*float64(i)), Qty: q})
	}
	for i, q := range askQty {
		book.Asks = append(book.Asks, market.PriceLevel{Price: 100 + (0.007 + 0.013*float64(i)), Qty: q})
	}
	return book
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestOrderBookBalancedIsNeutral(t *testing.T) {
	scorer := NewOrderBookScorer(DefaultOrderBookConfig())
	res := scorer.Score(symmetricBook(repeat(1, 10), repeat(1, 10)))

	if res.Direction != market.Neutral {
		t.Errorf("balanced book direction = %s, want NEUTRAL", res.Direction)
	}
	if res.Score != 0 {
		t.Errorf("balanced book score = %v, want 0", res.Score)
	}
	if res.Insufficient {
		t.Error("10 levels per side should not be insufficient")
	}
	if math.Abs(res.SpreadPct-0.014) > 1e-6 {
		t.Errorf("spread = %v, want 0.014", res.SpreadPct)
	}
}

func TestOrderBookBidHeavyIsLong(t *testing.T) {
	scorer := NewOrderBookScorer(DefaultOrderBookConfig())
	res := scorer.Score(symmetricBook(repeat(5, 10), repeat(1, 10)))

	if res.Direction != market.Long {
		t.Fatalf("bid-heavy book direction = %s, want LONG (bull=%v bear=%v)", res.Direction, res.Bull, res.Bear)
	}
	if res.Score <= 0 || res.Score > 10 {
		t.Errorf("score = %v, want in (0,10]", res.Score)
	}
	if math.Abs(res.DOM-2.0/3.0) > 1e-9 {
		t.Errorf("DOM = %v, want 0.667", res.DOM)
	}
	if res.BidPressureShare <= 0.6 {
		t.Errorf("bid pressure share = %v, want > 0.6", res.BidPressureShare)
	}

	mirrored := scorer.Score(symmetricBook(repeat(1, 10), repeat(5, 10)))
	if mirrored.Direction != market.Short {
		t.Errorf("ask-heavy book direction = %s, want SHORT", mirrored.Direction)
	}
}

func TestOrderBookDegenerate(t *testing.T) {
	scorer := NewOrderBookScorer(DefaultOrderBookConfig())

	empty := scorer.Score(&market.OrderBook{Bids: []market.PriceLevel{{Price: 99, Qty: 1}}})
	if empty.Direction != market.Neutral || empty.Score != 0 {
		t.Errorf("empty side: got %s/%v, want NEUTRAL/0", empty.Direction, empty.Score)
	}
	if !math.IsInf(empty.SpreadPct, 1) {
		t.Errorf("empty side spread = %v, want +Inf", empty.SpreadPct)
	}

	if res := scorer.Score(nil); !res.Insufficient {
		t.Error("nil book should be insufficient")
	}

	thin := scorer.Score(symmetricBook(repeat(5, 3), repeat(1, 3)))
	if !thin.Insufficient || thin.Direction != market.Neutral {
		t.Errorf("3-level book: insufficient=%v direction=%s, want true/NEUTRAL", thin.Insufficient, thin.Direction)
	}
}

func TestOrderBookWalls(t *testing.T) {
	scorer := NewOrderBookScorer(DefaultOrderBookConfig())
	asks := repeat(1, 10)
	asks[5] = 10

	res := scorer.Score(symmetricBook(repeat(1, 10), asks))
	if res.AskWalls != 1 || res.BidWalls != 0 {
		t.Errorf("walls bid=%d ask=%d, want 0/1", res.BidWalls, res.AskWalls)
	}
}

func TestOrderBookDirectionRuleHolds(t *testing.T) {
	cfg := DefaultOrderBookConfig()
	scorer := NewOrderBookScorer(cfg)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		bids := make([]float64, 5+rng.Intn(15))
		asks := make([]float64, 5+rng.Intn(15))
		for j := range bids {
			bids[j] = 0.1 + rng.Float64()*5
		}
		for j := range asks {
			asks[j] = 0.1 + rng.Float64()*5
		}

		res := scorer.Score(symmetricBook(bids, asks))
		if res.Direction == market.Neutral {
			if res.Score != 0 {
				t.Fatalf("case %d: NEUTRAL with score %v", i, res.Score)
			}
			continue
		}

		stronger, weaker := res.Bull, res.Bear
		if res.Direction == market.Short {
			stronger, weaker = res.Bear, res.Bull
		}
		if stronger < weaker*cfg.Rule.MinRatio {
			t.Fatalf("case %d: %s with stronger=%v weaker=%v", i, res.Direction, stronger, weaker)
		}
		if conf := math.Abs(res.Bull-res.Bear) / (res.Bull + res.Bear); conf <= cfg.Rule.MinConfidence {
			t.Fatalf("case %d: %s with confidence %v", i, res.Direction, conf)
		}
	}
}
