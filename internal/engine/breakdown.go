package engine

import (
	"time"

	"confluence-engine/internal/confluence"
	"confluence-engine/internal/levels"
	"confluence-engine/internal/market"
	"confluence-engine/internal/scoring"
	"confluence-engine/internal/signal"
)

// Status is the outcome class of one analysis
type Status string

const (
	StatusSignal       Status = "signal"
	StatusFallback     Status = "fallback"
	StatusNoSignal     Status = "no_signal"
	StatusInsufficient Status = "insufficient_data"
)

// Forecast is the one-line answer of an analysis
type Forecast struct {
	Status     Status           `json:"status"`
	Direction  market.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
}

// Breakdown is everything one analysis saw and decided, for observability
type Breakdown struct {
	Symbol     string           `json:"symbol"`
	Timeframe  market.Timeframe `json:"timeframe"`
	Price      float64          `json:"price"`
	AnalyzedAt time.Time        `json:"analyzed_at"`

	OrderBook scoring.OrderBookScore                   `json:"order_book"`
	Tape      scoring.TapeScore                        `json:"tape"`
	Candles   map[market.Timeframe]scoring.CandleScore `json:"candles"`
	MTF       scoring.MTFResult                        `json:"mtf"`

	Levels    []levels.Level          `json:"levels,omitempty"`
	Breakouts []levels.BreakoutSignal `json:"breakouts,omitempty"`

	Aux        confluence.Auxiliary  `json:"aux"`
	Confluence *confluence.Result    `json:"confluence,omitempty"`
	Forecast   Forecast              `json:"forecast"`
	Signal     *signal.TradingSignal `json:"signal,omitempty"`

	// FetchErrors names components whose fetch failed this cycle
	FetchErrors map[string]string `json:"fetch_errors,omitempty"`
}

// HasSignal reports whether a trading signal was produced
func (b *Breakdown) HasSignal() bool {
	return b != nil && b.Signal != nil
}
