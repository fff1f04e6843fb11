package scheduler

import (
	"context"
	"time"

	"confluence-engine/internal/engine"
	"confluence-engine/internal/signal"
)

// Config holds scheduler configuration
type Config struct {
	Symbols      []string
	Interval     time.Duration
	Workers      int
	FetchRate    float64 // fetches per second, <= 0 means unlimited
	FetchBurst   int
	FetchTimeout time.Duration
	BookDepth    int
	TradeLimit   int
	CandleLimit  int
}

// DefaultConfig returns default scheduler settings
func DefaultConfig() Config {
	return Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
		Interval:     time.Minute,
		Workers:      4,
		FetchRate:    10,
		FetchBurst:   20,
		FetchTimeout: 10 * time.Second,
		BookDepth:    50,
		TradeLimit:   200,
		CandleLimit:  200,
	}
}

// SignalSink receives every emitted trading signal
type SignalSink interface {
	Name() string
	SendSignal(ctx context.Context, sig *signal.TradingSignal) error
}

// BreakdownSink receives every completed analysis
type BreakdownSink interface {
	Name() string
	SaveBreakdown(ctx context.Context, bd *engine.Breakdown) error
}

// Metrics is what the scheduler reports to
type Metrics interface {
	ObserveTick(seconds float64)
	RecordAnalysis(symbol, status string, confidence float64)
	RecordSignal(symbol, direction string)
	RecordSkip(symbol string)
	RecordFetchError(symbol, component string)
	RecordSinkError(sink string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(float64)                    {}
func (nopMetrics) RecordAnalysis(string, string, float64) {}
func (nopMetrics) RecordSignal(string, string)            {}
func (nopMetrics) RecordSkip(string)                      {}
func (nopMetrics) RecordFetchError(string, string)        {}
func (nopMetrics) RecordSinkError(string)                 {}

// SymbolResult is what one tick did for one symbol
type SymbolResult struct {
	Symbol    string            `json:"symbol"`
	Breakdown *engine.Breakdown `json:"breakdown,omitempty"`

	// Skipped means the previous analysis of this symbol was still running
	Skipped bool `json:"skipped,omitempty"`
	// Discarded means the scheduler stopped before the result could be emitted
	Discarded bool `json:"discarded,omitempty"`

	FetchErrors map[string]string `json:"fetch_errors,omitempty"`
	SinkErrors  map[string]string `json:"sink_errors,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

// Degraded reports whether any fetch or sink failed
func (r SymbolResult) Degraded() bool {
	return len(r.FetchErrors) > 0 || len(r.SinkErrors) > 0
}

// TickResult aggregates one tick across all symbols, ordered by symbol
type TickResult struct {
	TickID    int64          `json:"tick_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Results   []SymbolResult `json:"results"`
	Signals   int            `json:"signals"`
	Skipped   int            `json:"skipped"`
	Degraded  int            `json:"degraded"`
}

// Result returns the entry for symbol
func (t TickResult) Result(symbol string) (SymbolResult, bool) {
	for _, r := range t.Results {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return SymbolResult{}, false
}
