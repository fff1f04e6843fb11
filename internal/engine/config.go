package engine

import (
	"confluence-engine/internal/confluence"
	"confluence-engine/internal/levels"
	"confluence-engine/internal/market"
	"confluence-engine/internal/scoring"
	"confluence-engine/internal/signal"
)

// Config holds the analyzer's own thresholds
type Config struct {
	PrimaryTimeframe market.Timeframe `json:"primary_timeframe" yaml:"primary_timeframe" validate:"required"`
	Mode             signal.Mode      `json:"mode" yaml:"mode" validate:"oneof=scalping default swing"`

	// insufficient-data floors
	MinBookLevels int `json:"min_book_levels" yaml:"min_book_levels" validate:"gte=1"`
	MinTrades     int `json:"min_trades" yaml:"min_trades" validate:"gte=1"`
	MinCandles    int `json:"min_candles" yaml:"min_candles" validate:"gte=1"`

	BookBandPct   float64 `json:"book_band_pct" yaml:"book_band_pct" validate:"gt=0"` // book volume band for breakout pressure
	RecentCloses  int     `json:"recent_closes" yaml:"recent_closes" validate:"gte=2"`
	WickMarginPct float64 `json:"wick_margin_pct" yaml:"wick_margin_pct" validate:"gte=0"` // pierce needed to call a failed breakout
}

// DefaultConfig returns default analyzer thresholds
func DefaultConfig() Config {
	return Config{
		PrimaryTimeframe: market.TF15m,
		Mode:             signal.ModeDefault,
		MinBookLevels:    5,
		MinTrades:        5,
		MinCandles:       50,
		BookBandPct:      1.0,
		RecentCloses:     5,
		WickMarginPct:    0.1,
	}
}

// Settings gathers every table the analyzer's components need
type Settings struct {
	Engine     Config                  `json:"engine" yaml:"engine"`
	OrderBook  scoring.OrderBookConfig `json:"order_book" yaml:"order_book"`
	Tape       scoring.TapeConfig      `json:"tape" yaml:"tape"`
	Candle     scoring.CandleConfig    `json:"candle" yaml:"candle"`
	MTF        scoring.MTFConfig       `json:"mtf" yaml:"mtf"`
	Levels     levels.Config           `json:"levels" yaml:"levels"`
	Breakout   levels.BreakoutConfig   `json:"breakout" yaml:"breakout"`
	Confluence confluence.Policy       `json:"confluence" yaml:"confluence"`
	Signal     signal.Config           `json:"signal" yaml:"signal"`
}

// DefaultSettings returns the documented defaults for every component
func DefaultSettings() Settings {
	return Settings{
		Engine:     DefaultConfig(),
		OrderBook:  scoring.DefaultOrderBookConfig(),
		Tape:       scoring.DefaultTapeConfig(),
		Candle:     scoring.DefaultCandleConfig(),
		MTF:        scoring.DefaultMTFConfig(),
		Levels:     levels.DefaultConfig(),
		Breakout:   levels.DefaultBreakoutConfig(),
		Confluence: confluence.DefaultPolicy(),
		Signal:     signal.DefaultConfig(),
	}
}
