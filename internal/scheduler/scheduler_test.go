package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/engine"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

var fixtureTime = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

// fixtureProvider serves a bullish book, tape and candle set for any symbol
type fixtureProvider struct {
	mu        sync.Mutex
	failBook  map[string]bool
	block     chan struct{} // when set, every book fetch waits on it
	entered   chan struct{}
	enterOnce sync.Once
	candleTFs map[market.Timeframe]int
}

func newFixtureProvider() *fixtureProvider {
	return &fixtureProvider{
		failBook:  make(map[string]bool),
		candleTFs: make(map[market.Timeframe]int),
	}
}

func (p *fixtureProvider) GetOrderBook(ctx context.Context, symbol string, depth int) (*market.OrderBook, error) {
	p.mu.Lock()
	fail := p.failBook[symbol]
	block := p.block
	p.mu.Unlock()

	if block != nil {
		p.enterOnce.Do(func() { close(p.entered) })
		<-block
	}
	if fail {
		return nil, errors.New("exchange timeout")
	}

	book := &market.OrderBook{Symbol: symbol, Timestamp: fixtureTime}
	for i := 0; i < 10; i++ {
		step := 0.01 * float64(i+1)
		book.Bids = append(book.Bids, market.PriceLevel{Price: 100 - step, Qty: 50})
		book.Asks = append(book.Asks, market.PriceLevel{Price: 100 + step, Qty: 5})
	}
	return book, nil
}

func (p *fixtureProvider) GetTrades(ctx context.Context, symbol string, limit int) ([]market.Trade, error) {
	trades := make([]market.Trade, 20)
	for i := range trades {
		trades[i] = market.Trade{
			Price: 100 + 0.02*float64(i),
			Qty:   1,
			Time:  fixtureTime.Add(time.Duration(i) * time.Second),
			IsBuy: true,
		}
	}
	return trades, nil
}

func (p *fixtureProvider) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	p.mu.Lock()
	p.candleTFs[tf]++
	p.mu.Unlock()

	n := 80
	candles := make([]market.Candle, n)
	price := 100.0
	for i := range candles {
		move := 0.1
		if i%2 == 1 {
			move = -0.05
		}
		open := price
		price += move
		candles[i] = market.Candle{
			OpenTime:  fixtureTime.Add(time.Duration(i-n) * tf.Duration()),
			Open:      open,
			High:      math.Max(open, price) + 0.02,
			Low:       math.Min(open, price) - 0.02,
			Close:     price,
			Volume:    100,
			CloseTime: fixtureTime.Add(time.Duration(i-n+1) * tf.Duration()),
		}
	}
	return candles, nil
}

type recordingSink struct {
	name       string
	err        error
	mu         sync.Mutex
	signals    []*signal.TradingSignal
	breakdowns []*engine.Breakdown
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) SendSignal(_ context.Context, sig *signal.TradingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return s.err
}

func (s *recordingSink) SaveBreakdown(_ context.Context, bd *engine.Breakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakdowns = append(s.breakdowns, bd)
	return s.err
}

func (s *recordingSink) counts() (signals, breakdowns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals), len(s.breakdowns)
}

type countingMetrics struct {
	nopMetrics
	mu          sync.Mutex
	fetchErrors map[string]int
	skips       int
	ticks       int
}

func (m *countingMetrics) RecordFetchError(symbol, component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrors[symbol+"/"+component]++
}

func (m *countingMetrics) RecordSkip(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips++
}

func (m *countingMetrics) ObserveTick(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func newTestScheduler(p *fixtureProvider, symbols ...string) *Scheduler {
	cfg := DefaultConfig()
	cfg.Symbols = symbols
	cfg.FetchRate = 0
	analyzer := engine.NewAnalyzer(engine.DefaultSettings(), nil, zerolog.Nop())
	return New(cfg, p, analyzer, nil, zerolog.Nop())
}

func TestTickAnalyzesEverySymbol(t *testing.T) {
	p := newFixtureProvider()
	s := newTestScheduler(p, "SOLUSDT", "BTCUSDT", "ETHUSDT")
	sink := &recordingSink{name: "recorder"}
	s.AddSignalSink(sink)
	s.AddBreakdownSink(sink)

	tick := s.Tick(context.Background())

	if len(tick.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(tick.Results))
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	for i, res := range tick.Results {
		if res.Symbol != want[i] {
			t.Errorf("result %d = %s, want %s (sorted)", i, res.Symbol, want[i])
		}
		if res.Breakdown == nil || res.Skipped || res.Discarded || res.Degraded() {
			t.Errorf("%s: unexpected result %+v", res.Symbol, res)
		}
		if res.Breakdown != nil && res.Breakdown.Forecast.Status == engine.StatusInsufficient {
			t.Errorf("%s: insufficient data: %s", res.Symbol, res.Breakdown.Forecast.Reason)
		}
	}

	signals, breakdowns := sink.counts()
	if breakdowns != 3 {
		t.Errorf("breakdown sink got %d, want 3", breakdowns)
	}
	if signals != tick.Signals {
		t.Errorf("signal sink got %d, tick reports %d", signals, tick.Signals)
	}

	// every timeframe the analyzer needs was fetched once per symbol
	for _, tf := range s.analyzer.Timeframes() {
		if p.candleTFs[tf] != 3 {
			t.Errorf("%s fetched %d times, want 3", tf, p.candleTFs[tf])
		}
	}

	select {
	case got := <-s.Results():
		if got.TickID != tick.TickID {
			t.Errorf("channel tick %d, returned tick %d", got.TickID, tick.TickID)
		}
	default:
		t.Error("tick result not sent on Results()")
	}

	if bd, ok := s.Latest("ETHUSDT"); !ok || bd.Symbol != "ETHUSDT" {
		t.Error("latest breakdown not stored")
	}
	if last := s.LastTick(); last == nil || last.TickID != tick.TickID {
		t.Error("LastTick not updated")
	}
}

func TestFetchErrorDegradesOnlyThatComponent(t *testing.T) {
	p := newFixtureProvider()
	p.failBook["ETHUSDT"] = true
	s := newTestScheduler(p, "BTCUSDT", "ETHUSDT")
	m := &countingMetrics{fetchErrors: make(map[string]int)}
	s.SetMetrics(m)

	tick := s.Tick(context.Background())

	eth, _ := tick.Result("ETHUSDT")
	if _, ok := eth.FetchErrors[componentOrderBook]; !ok || len(eth.FetchErrors) != 1 {
		t.Fatalf("ETH fetch errors = %v", eth.FetchErrors)
	}
	if eth.Breakdown == nil || eth.Breakdown.FetchErrors[componentOrderBook] == "" {
		t.Fatal("breakdown should carry the fetch error")
	}
	if eth.Breakdown.Forecast.Status != engine.StatusInsufficient {
		t.Errorf("ETH status = %s, want insufficient_data without a book", eth.Breakdown.Forecast.Status)
	}
	if len(eth.Breakdown.Candles) == 0 {
		t.Error("candle domains should still be scored")
	}

	btc, _ := tick.Result("BTCUSDT")
	if btc.Degraded() {
		t.Errorf("BTC should be unaffected: %v", btc.FetchErrors)
	}
	if tick.Degraded != 1 {
		t.Errorf("degraded = %d, want 1", tick.Degraded)
	}
	if m.fetchErrors["ETHUSDT/order_book"] != 1 || m.ticks != 1 {
		t.Errorf("metrics = %v ticks=%d", m.fetchErrors, m.ticks)
	}
}

func TestSinkFailureDoesNotAbortTick(t *testing.T) {
	p := newFixtureProvider()
	s := newTestScheduler(p, "BTCUSDT")
	broken := &recordingSink{name: "broken", err: errors.New("connection refused")}
	healthy := &recordingSink{name: "healthy"}
	s.AddBreakdownSink(broken)
	s.AddBreakdownSink(healthy)

	tick := s.Tick(context.Background())

	res, _ := tick.Result("BTCUSDT")
	if res.SinkErrors["broken"] != "connection refused" {
		t.Errorf("sink errors = %v", res.SinkErrors)
	}
	if _, n := healthy.counts(); n != 1 {
		t.Errorf("healthy sink got %d breakdowns, want 1", n)
	}
	if _, ok := s.Latest("BTCUSDT"); !ok {
		t.Error("analysis should still be recorded")
	}
}

func TestInFlightSymbolIsSkipped(t *testing.T) {
	p := newFixtureProvider()
	p.block = make(chan struct{})
	p.entered = make(chan struct{})
	s := newTestScheduler(p, "BTCUSDT")
	m := &countingMetrics{fetchErrors: make(map[string]int)}
	s.SetMetrics(m)

	first := make(chan TickResult, 1)
	go func() { first <- s.Tick(context.Background()) }()

	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never fetched")
	}

	second := s.Tick(context.Background())
	if res, _ := second.Result("BTCUSDT"); !res.Skipped || res.Breakdown != nil {
		t.Errorf("second tick result = %+v, want skipped", res)
	}
	if second.Skipped != 1 || m.skips != 1 {
		t.Errorf("skipped = %d, metric = %d", second.Skipped, m.skips)
	}

	close(p.block)
	got := <-first
	if res, _ := got.Result("BTCUSDT"); res.Skipped || res.Breakdown == nil {
		t.Errorf("first tick result = %+v", res)
	}

	// guard released
	if res, _ := s.Tick(context.Background()).Result("BTCUSDT"); res.Skipped {
		t.Error("symbol still marked in flight")
	}
}

func TestStopDiscardsInFlightResults(t *testing.T) {
	p := newFixtureProvider()
	p.block = make(chan struct{})
	p.entered = make(chan struct{})
	s := newTestScheduler(p, "BTCUSDT")
	sink := &recordingSink{name: "recorder"}
	s.AddSignalSink(sink)
	s.AddBreakdownSink(sink)

	done := make(chan TickResult, 1)
	go func() { done <- s.Tick(context.Background()) }()
	<-p.entered

	s.Stop()
	close(p.block)

	tick := <-done
	res, _ := tick.Result("BTCUSDT")
	if !res.Discarded {
		t.Errorf("result = %+v, want discarded", res)
	}
	if sig, bd := sink.counts(); sig != 0 || bd != 0 {
		t.Errorf("sinks received %d signals, %d breakdowns after stop", sig, bd)
	}
	if _, ok := s.Latest("BTCUSDT"); ok {
		t.Error("discarded analysis should not be stored")
	}
	if tick.Signals != 0 {
		t.Errorf("signals = %d, discarded signals must not count", tick.Signals)
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	p := newFixtureProvider()
	s := newTestScheduler(p, "BTCUSDT")
	s.config.Interval = time.Hour

	s.Start(context.Background())

	select {
	case tick := <-s.Results():
		if tick.TickID != 1 || len(tick.Results) != 1 {
			t.Errorf("first tick = %+v", tick)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no immediate tick")
	}

	s.Stop()
	s.Stop() // idempotent
	if !s.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestStartExitsOnContextCancel(t *testing.T) {
	s := newTestScheduler(newFixtureProvider(), "BTCUSDT")
	s.config.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-s.Results()
	cancel()

	exited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
}
