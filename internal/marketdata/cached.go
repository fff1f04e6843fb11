package marketdata

import (
	"context"
	"sync"
	"time"

	"confluence-engine/internal/cache"
	"confluence-engine/internal/market"
)

// CachedProvider reuses candle windows until their timeframe TTL expires.
// Books and trades always go to the underlying provider.
type CachedProvider struct {
	Provider
	cache CandleCache
}

// NewCachedProvider wraps p with candle caching
func NewCachedProvider(p Provider, c CandleCache) *CachedProvider {
	return &CachedProvider{Provider: p, cache: c}
}

// GetOHLCV serves from the cache when it can
func (cp *CachedProvider) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if candles, ok := cp.cache.GetCandles(ctx, symbol, tf, limit); ok {
		return candles, nil
	}

	candles, err := cp.Provider.GetOHLCV(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	cp.cache.SetCandles(ctx, symbol, tf, limit, candles)
	return candles, nil
}

type memoryEntry struct {
	candles   []market.Candle
	expiresAt time.Time
}

// MemoryCandleCache is the in-process CandleCache used when Redis is off
type MemoryCandleCache struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryCandleCache creates an empty in-process candle cache
func NewMemoryCandleCache() *MemoryCandleCache {
	return &MemoryCandleCache{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source, for tests
func (m *MemoryCandleCache) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// GetCandles returns a copy of unexpired candles
func (m *MemoryCandleCache) GetCandles(_ context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[cache.CandleKey(symbol, tf, limit)]
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, false
	}
	return append([]market.Candle(nil), entry.candles...), true
}

// SetCandles stores a copy for the timeframe's TTL
func (m *MemoryCandleCache) SetCandles(_ context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[cache.CandleKey(symbol, tf, limit)] = memoryEntry{
		candles:   append([]market.Candle(nil), candles...),
		expiresAt: m.now().Add(cache.CandleTTL(tf)),
	}
}

// Cleanup drops expired entries
func (m *MemoryCandleCache) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.data {
		if !now.Before(entry.expiresAt) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}
