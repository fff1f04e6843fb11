package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"confluence-engine/internal/engine"
	"confluence-engine/internal/events"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/market"
	"confluence-engine/internal/marketdata"
)

const (
	componentOrderBook = "order_book"
	componentTrades    = "trades"
)

func candleComponent(tf market.Timeframe) string {
	return "candles_" + string(tf)
}

// Scheduler runs the analyzer over every watched symbol on a fixed interval
type Scheduler struct {
	config   Config
	provider marketdata.Provider
	analyzer *engine.Analyzer
	limiter  *rate.Limiter
	bus      *events.EventBus
	metrics  Metrics
	base     zerolog.Logger
	logger   zerolog.Logger

	signalSinks    []SignalSink
	breakdownSinks []BreakdownSink

	inflightMu sync.Mutex
	inflight   map[string]bool

	stopped  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
	tickSeq  atomic.Int64
	results  chan TickResult

	mu       sync.RWMutex
	latest   map[string]*engine.Breakdown
	lastTick *TickResult
}

// New creates a scheduler. bus may be nil.
func New(config Config, provider marketdata.Provider, analyzer *engine.Analyzer, bus *events.EventBus, logger zerolog.Logger) *Scheduler {
	limit := rate.Inf
	if config.FetchRate > 0 {
		limit = rate.Limit(config.FetchRate)
	}
	burst := config.FetchBurst
	if burst < 1 {
		burst = 1
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	return &Scheduler{
		config:   config,
		provider: provider,
		analyzer: analyzer,
		limiter:  rate.NewLimiter(limit, burst),
		bus:      bus,
		metrics:  nopMetrics{},
		base:     logger,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		inflight: make(map[string]bool),
		stopChan: make(chan struct{}),
		results:  make(chan TickResult, 16),
		latest:   make(map[string]*engine.Breakdown),
	}
}

// AddSignalSink registers a destination for emitted signals
func (s *Scheduler) AddSignalSink(sink SignalSink) {
	s.signalSinks = append(s.signalSinks, sink)
}

// AddBreakdownSink registers a destination for analysis breakdowns
func (s *Scheduler) AddBreakdownSink(sink BreakdownSink) {
	s.breakdownSinks = append(s.breakdownSinks, sink)
}

// SetMetrics replaces the metrics recorder
func (s *Scheduler) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
}

// Results delivers every TickResult. Sends never block: when the buffer is
// full the result is dropped from the channel but still available via LastTick.
func (s *Scheduler) Results() <-chan TickResult {
	return s.results
}

// Start begins the background tick loop. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info().
		Strs("symbols", s.config.Symbols).
		Dur("interval", s.config.Interval).
		Int("workers", s.config.Workers).
		Msg("Scheduler started")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stopChan:
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info().Err(ctx.Err()).Msg("Scheduler context done")
			return
		}
	}
}

// Stop cancels the timer and waits for the loop to exit. Analyses still in
// flight finish, but their results are discarded instead of emitted.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Stopped reports whether Stop has been called
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// Tick runs one analysis cycle over every symbol and returns its result
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	start := time.Now()
	tick := TickResult{
		TickID:    s.tickSeq.Add(1),
		StartedAt: start,
	}
	log := s.logger.With().Int64("tick", tick.TickID).Logger()

	symbols := s.config.Symbols
	symbolChan := make(chan string, len(symbols))
	resultChan := make(chan SymbolResult, len(symbols))
	var wg sync.WaitGroup

	workers := s.config.Workers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, symbolChan, resultChan, &wg)
	}

	for _, symbol := range symbols {
		symbolChan <- symbol
	}
	close(symbolChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		tick.Results = append(tick.Results, res)
		switch {
		case res.Skipped:
			tick.Skipped++
		case res.Breakdown.HasSignal() && !res.Discarded:
			tick.Signals++
		}
		if res.Degraded() {
			tick.Degraded++
		}
	}
	sort.Slice(tick.Results, func(i, j int) bool {
		return tick.Results[i].Symbol < tick.Results[j].Symbol
	})

	tick.Duration = time.Since(start)
	s.metrics.ObserveTick(tick.Duration.Seconds())

	s.mu.Lock()
	s.lastTick = &tick
	s.mu.Unlock()

	select {
	case s.results <- tick:
	default:
		log.Warn().Msg("Tick result channel full, dropping result")
	}

	log.Info().
		Dur("duration", tick.Duration).
		Int("symbols", len(symbols)).
		Int("signals", tick.Signals).
		Int("skipped", tick.Skipped).
		Int("degraded", tick.Degraded).
		Msg("Tick completed")

	return tick
}

func (s *Scheduler) worker(ctx context.Context, symbolChan <-chan string, resultChan chan<- SymbolResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for symbol := range symbolChan {
		resultChan <- s.processSymbol(ctx, symbol)
	}
}

// acquire claims the in-flight slot for symbol
func (s *Scheduler) acquire(symbol string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight[symbol] {
		return false
	}
	s.inflight[symbol] = true
	return true
}

func (s *Scheduler) release(symbol string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, symbol)
}

func (s *Scheduler) processSymbol(ctx context.Context, symbol string) SymbolResult {
	start := time.Now()
	res := SymbolResult{Symbol: symbol}

	if !s.acquire(symbol) {
		res.Skipped = true
		s.metrics.RecordSkip(symbol)
		s.logger.Debug().Str("symbol", symbol).Msg("Previous analysis still running, skipping")
		return res
	}
	defer s.release(symbol)

	// the context logger carries only the trace id; the analyzer tags its own fields
	ctx, traced := logging.WithTraceContext(ctx, s.base)
	log := logging.SymbolContext(traced, symbol, string(s.analyzer.Config().PrimaryTimeframe)).
		With().Str("component", "scheduler").Logger()

	snap, fetchErrors := s.fetch(ctx, symbol)
	for component, msg := range fetchErrors {
		s.metrics.RecordFetchError(symbol, component)
		log.Warn().Str("fetch", component).Str("error", msg).Msg("Fetch failed, component degraded")
	}

	bd := s.analyzer.Analyze(ctx, snap)
	if len(fetchErrors) > 0 {
		bd.FetchErrors = fetchErrors
	}
	res.Breakdown = bd
	res.FetchErrors = fetchErrors
	res.Duration = time.Since(start)

	if s.stopped.Load() {
		res.Discarded = true
		log.Debug().Msg("Scheduler stopped, discarding analysis")
		return res
	}

	s.mu.Lock()
	s.latest[symbol] = bd
	s.mu.Unlock()

	s.metrics.RecordAnalysis(symbol, string(bd.Forecast.Status), bd.Forecast.Confidence)
	s.bus.PublishAnalysis(symbol, string(bd.Forecast.Status), bd)

	sinkErrors := make(map[string]string)
	if bd.HasSignal() {
		sig := bd.Signal
		s.metrics.RecordSignal(symbol, string(sig.Direction))
		s.bus.PublishSignal(symbol, string(sig.Direction), sig.Confidence, sig)
		for _, sink := range s.signalSinks {
			if err := sink.SendSignal(ctx, sig); err != nil {
				s.sinkFailed(log, sinkErrors, sink.Name(), err)
			}
		}
	}
	for _, sink := range s.breakdownSinks {
		if err := sink.SaveBreakdown(ctx, bd); err != nil {
			s.sinkFailed(log, sinkErrors, sink.Name(), err)
		}
	}
	if len(sinkErrors) > 0 {
		res.SinkErrors = sinkErrors
	}
	res.Duration = time.Since(start)
	return res
}

func (s *Scheduler) sinkFailed(log zerolog.Logger, errs map[string]string, name string, err error) {
	errs[name] = err.Error()
	s.metrics.RecordSinkError(name)
	s.bus.PublishError("sink:"+name, "delivery failed", err)
	log.Error().Err(err).Str("sink", name).Msg("Sink delivery failed")
}

// fetch gathers the book, the tape and every timeframe in parallel and joins.
// A failed fetch leaves its part of the snapshot empty and is reported by
// component name.
func (s *Scheduler) fetch(ctx context.Context, symbol string) (market.Snapshot, map[string]string) {
	snap := market.Snapshot{
		Symbol:  symbol,
		Candles: make(map[market.Timeframe][]market.Candle),
	}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make(map[string]string)
	)

	run := func(component string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.limiter.Wait(ctx)
			if err == nil {
				fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
				err = fn(fctx)
				cancel()
			}
			if err != nil {
				mu.Lock()
				errs[component] = err.Error()
				mu.Unlock()
			}
		}()
	}

	run(componentOrderBook, func(ctx context.Context) error {
		book, err := s.provider.GetOrderBook(ctx, symbol, s.config.BookDepth)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.OrderBook = book
		mu.Unlock()
		return nil
	})

	run(componentTrades, func(ctx context.Context) error {
		trades, err := s.provider.GetTrades(ctx, symbol, s.config.TradeLimit)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Trades = trades
		mu.Unlock()
		return nil
	})

	for _, tf := range s.analyzer.Timeframes() {
		tf := tf
		run(candleComponent(tf), func(ctx context.Context) error {
			candles, err := s.provider.GetOHLCV(ctx, symbol, tf, s.config.CandleLimit)
			if err != nil {
				return fmt.Errorf("%s: %w", tf, err)
			}
			mu.Lock()
			snap.Candles[tf] = candles
			mu.Unlock()
			return nil
		})
	}

	wg.Wait()
	snap.FetchedAt = time.Now()

	if len(errs) == 0 {
		return snap, nil
	}
	return snap, errs
}

func (s *Scheduler) fetchTimeout() time.Duration {
	if s.config.FetchTimeout > 0 {
		return s.config.FetchTimeout
	}
	return 10 * time.Second
}

// Latest returns the most recent breakdown for symbol
func (s *Scheduler) Latest(symbol string) (*engine.Breakdown, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bd, ok := s.latest[symbol]
	return bd, ok
}

// LatestAll returns the most recent breakdown of every symbol
func (s *Scheduler) LatestAll() map[string]*engine.Breakdown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*engine.Breakdown, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// LastTick returns the most recent tick result, nil before the first tick
func (s *Scheduler) LastTick() *TickResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// Symbols returns the watched symbols
func (s *Scheduler) Symbols() []string {
	return append([]string(nil), s.config.Symbols...)
}
