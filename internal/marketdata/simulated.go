package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"confluence-engine/internal/market"
)

// basePrices seeds the simulated walk for well-known symbols
var basePrices = map[string]float64{
	"BTCUSDT":  104500.00,
	"ETHUSDT":  3900.00,
	"BNBUSDT":  710.00,
	"SOLUSDT":  220.00,
	"XRPUSDT":  2.35,
	"ADAUSDT":  1.05,
	"DOGEUSDT": 0.40,
	"AVAXUSDT": 50.00,
	"LINKUSDT": 28.00,
	"LTCUSDT":  115.00,
}

const defaultBasePrice = 100.0

// simSymbol is the walk state of one symbol
type simSymbol struct {
	rng        *rand.Rand
	price      float64
	bias       float64 // buy-side skew in [-1, 1], drifts slowly
	lastUpdate time.Time
}

// Simulated generates plausible, reproducible market data for running the
// engine without an exchange connector. Each symbol has its own random
// source derived from the seed, so output depends only on the seed, the
// symbol and the sequence of calls.
type Simulated struct {
	mu      sync.Mutex
	seed    int64
	symbols map[string]*simSymbol
	now     func() time.Time
}

// NewSimulated creates a simulated provider
func NewSimulated(seed int64) *Simulated {
	return &Simulated{
		seed:    seed,
		symbols: make(map[string]*simSymbol),
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests
func (s *Simulated) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// symbol returns the walk state, stepping the price at most once per second.
// Must be called with the lock held.
func (s *Simulated) symbol(name string) *simSymbol {
	now := s.now()
	st, ok := s.symbols[name]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(name))
		base, known := basePrices[name]
		if !known {
			base = defaultBasePrice
		}
		st = &simSymbol{
			rng:        rand.New(rand.NewSource(s.seed ^ int64(h.Sum64()))),
			price:      base,
			lastUpdate: now,
		}
		s.symbols[name] = st
		return st
	}

	if now.Sub(st.lastUpdate) >= time.Second {
		change := (st.rng.Float64() - 0.5) * 0.01
		st.price *= 1 + change
		st.bias = math.Max(-1, math.Min(1, st.bias*0.8+(st.rng.Float64()-0.5)*0.6))
		st.lastUpdate = now
	}
	return st
}

// volatility is the per-candle move scale, growing with the square root of the interval
func volatility(tf market.Timeframe) float64 {
	return 0.001 * math.Sqrt(tf.Duration().Minutes())
}

// GetOHLCV walks backwards from the current price so the newest close is the
// current price and each open equals the previous close
func (s *Simulated) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tf.Valid() {
		return nil, ErrUnsupportedTimeframe
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.symbol(symbol)
	interval := tf.Duration()
	vol := volatility(tf)
	end := s.now().Truncate(interval)

	candles := make([]market.Candle, limit)
	price := st.price
	for i := limit - 1; i >= 0; i-- {
		openTime := end.Add(-time.Duration(limit-i) * interval)
		closePrice := price
		change := (st.rng.Float64() - 0.5) * vol * 2
		openPrice := closePrice / (1 + change)

		high := math.Max(openPrice, closePrice) * (1 + st.rng.Float64()*vol*0.5)
		low := math.Min(openPrice, closePrice) * (1 - st.rng.Float64()*vol*0.5)

		candles[i] = market.Candle{
			OpenTime:  openTime,
			Open:      openPrice,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000 + st.rng.Float64()*5000,
			CloseTime: openTime.Add(interval - time.Millisecond),
		}
		price = openPrice
	}
	return candles, nil
}

// GetOrderBook builds a ladder around the current price. The current bias
// thickens one side so books are rarely perfectly balanced.
func (s *Simulated) GetOrderBook(ctx context.Context, symbol string, depth int) (*market.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.symbol(symbol)
	mid := st.price
	tick := mid * 0.0001
	bidScale := 1 + st.bias*0.5
	askScale := 1 - st.bias*0.5

	book := &market.OrderBook{
		Symbol:    symbol,
		Bids:      make([]market.PriceLevel, depth),
		Asks:      make([]market.PriceLevel, depth),
		Timestamp: s.now(),
	}
	for i := 0; i < depth; i++ {
		offset := tick * (0.5 + float64(i))
		book.Bids[i] = market.PriceLevel{Price: mid - offset, Qty: (0.5 + st.rng.Float64()*2) * bidScale}
		book.Asks[i] = market.PriceLevel{Price: mid + offset, Qty: (0.5 + st.rng.Float64()*2) * askScale}
	}
	return book, nil
}

// GetTrades returns the most recent trades, oldest first
func (s *Simulated) GetTrades(ctx context.Context, symbol string, limit int) ([]market.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.symbol(symbol)
	now := s.now()
	buyProb := 0.5 + st.bias*0.25

	trades := make([]market.Trade, limit)
	for i := range trades {
		trades[i] = market.Trade{
			Price: st.price * (1 + (st.rng.Float64()-0.5)*0.001),
			Qty:   math.Abs(st.rng.NormFloat64()) * 10000 / st.price,
			Time:  now.Add(-time.Duration(st.rng.Int63n(int64(time.Minute)))),
			IsBuy: st.rng.Float64() < buyProb,
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Time.Before(trades[j].Time) })
	return trades, nil
}

// Price returns the current simulated price of symbol
func (s *Simulated) Price(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol(symbol).price
}
