package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/market"
)

// CandleTTL returns how long candles of tf stay fresh enough to reuse
func CandleTTL(tf market.Timeframe) time.Duration {
	switch tf {
	case market.TF1m:
		return 30 * time.Second
	case market.TF5m:
		return 2 * time.Minute
	case market.TF15m:
		return 5 * time.Minute
	case market.TF1h:
		return 30 * time.Minute
	case market.TF4h:
		return 2 * time.Hour
	case market.TF1d:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}

// CandleKey is the Redis key for one candle request
func CandleKey(symbol string, tf market.Timeframe, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, tf, limit)
}

// CandleCache stores OHLCV windows in Redis with per-timeframe TTLs
type CandleCache struct {
	store  Store
	logger zerolog.Logger
}

// NewCandleCache creates a Redis-backed candle cache
func NewCandleCache(store Store, logger zerolog.Logger) *CandleCache {
	return &CandleCache{
		store:  store,
		logger: logger.With().Str("component", "candle_cache").Logger(),
	}
}

// GetCandles returns cached candles, false on a miss or when Redis is down
func (c *CandleCache) GetCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, bool) {
	var candles []market.Candle
	if err := GetJSON(ctx, c.store, CandleKey(symbol, tf, limit), &candles); err != nil {
		if !IsMiss(err) {
			c.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Candle cache read failed")
		}
		return nil, false
	}
	return candles, true
}

// SetCandles caches candles for the timeframe's TTL
func (c *CandleCache) SetCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle) {
	if err := c.store.Set(ctx, CandleKey(symbol, tf, limit), candles, CandleTTL(tf)); err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("Candle cache write failed")
	}
}
