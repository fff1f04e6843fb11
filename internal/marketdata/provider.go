// Package marketdata supplies normalized order books, trades and candles to
// the scheduler. Real exchange connectors live outside this module and only
// need to satisfy Provider.
package marketdata

import (
	"context"
	"errors"

	"confluence-engine/internal/market"
)

var (
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
	ErrInvalidLimit         = errors.New("limit must be positive")
)

// Provider fetches raw market data for one symbol
type Provider interface {
	GetOrderBook(ctx context.Context, symbol string, depth int) (*market.OrderBook, error)
	GetTrades(ctx context.Context, symbol string, limit int) ([]market.Trade, error)
	GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// CandleCache stores candle windows between ticks
type CandleCache interface {
	GetCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, bool)
	SetCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle)
}
