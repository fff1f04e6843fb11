package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

// OpenPosition is the minimum a trailing stop needs to know
type OpenPosition struct {
	Direction market.Direction `json:"direction"`
	Entry     float64          `json:"entry"`
	Stop      float64          `json:"stop"`
}

// ProfitPct is the direction-aware unrealised profit in percent of entry
func (p OpenPosition) ProfitPct(price float64) float64 {
	if p.Entry <= 0 {
		return 0
	}
	return (price - p.Entry) / p.Entry * 100 * p.Direction.Sign()
}

// activationTolerance absorbs float error in the profit percentage, so a
// price exactly at the activation threshold activates
const activationTolerance = 1e-9

// reachedActivation reports profit at or beyond the activation threshold
func reachedActivation(profitPct, activationPct float64) bool {
	return profitPct+activationTolerance >= activationPct
}

// UpdateTrailingStop returns the stop after observing price. Once profit
// reaches the activation threshold the candidate stop sits step% of entry
// behind price. The candidate is adopted only when it is strictly more
// favourable than the current stop and stays on the safe side of price, so
// the stop never loosens.
func UpdateTrailingStop(pos OpenPosition, price float64, cfg signal.TrailingConfig) (float64, bool) {
	if !pos.Direction.IsDirectional() || pos.Entry <= 0 || price <= 0 {
		return pos.Stop, false
	}
	if !reachedActivation(pos.ProfitPct(price), cfg.ActivationPct) {
		return pos.Stop, false
	}

	step := pos.Entry * cfg.StepPct / 100
	candidate := price - step*pos.Direction.Sign()

	if pos.Direction == market.Long {
		if candidate > pos.Stop && candidate < price {
			return candidate, true
		}
	} else {
		if candidate < pos.Stop && candidate > price {
			return candidate, true
		}
	}
	return pos.Stop, false
}

// ShouldExit reports price at or through the stop on the adverse side
func ShouldExit(dir market.Direction, price, stop float64) bool {
	switch dir {
	case market.Long:
		return price <= stop
	case market.Short:
		return price >= stop
	}
	return false
}

// TrailingPosition tracks a position with trailing stop
type TrailingPosition struct {
	Symbol           string                `json:"symbol"`
	Direction        market.Direction      `json:"direction"`
	EntryPrice       float64               `json:"entry_price"`
	CurrentStopLoss  float64               `json:"current_stop_loss"`
	OriginalStopLoss float64               `json:"original_stop_loss"`
	Trailing         signal.TrailingConfig `json:"trailing"`
	HighWaterMark    float64               `json:"high_water_mark"`
	LowWaterMark     float64               `json:"low_water_mark"`
	IsActivated      bool                  `json:"is_activated"`
	OpenedAt         time.Time             `json:"opened_at"`
	LastUpdate       time.Time             `json:"last_update"`
}

// StopUpdate represents a stop loss update
type StopUpdate struct {
	Symbol       string  `json:"symbol"`
	OldStopLoss  float64 `json:"old_stop_loss"`
	NewStopLoss  float64 `json:"new_stop_loss"`
	IsTriggered  bool    `json:"is_triggered"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
}

// TrailingStopManager applies UpdateTrailingStop to many open positions
type TrailingStopManager struct {
	positions map[string]*TrailingPosition
	mu        sync.RWMutex
	now       func() time.Time
	logger    zerolog.Logger
}

// NewTrailingStopManager creates a new trailing stop manager
func NewTrailingStopManager(logger zerolog.Logger) *TrailingStopManager {
	return &TrailingStopManager{
		positions: make(map[string]*TrailingPosition),
		now:       time.Now,
		logger:    logger.With().Str("component", "trailing_stop").Logger(),
	}
}

// SetClock replaces the time source, for tests
func (tsm *TrailingStopManager) SetClock(now func() time.Time) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()
	tsm.now = now
}

// Track starts trailing the stop of a freshly generated signal
func (tsm *TrailingStopManager) Track(sig *signal.TradingSignal) {
	tsm.AddPosition(sig.Symbol, sig.Direction, sig.EntryPrice, sig.StopLoss, sig.Trailing)
}

// AddPosition adds a new position to track
func (tsm *TrailingStopManager) AddPosition(symbol string, dir market.Direction, entryPrice, stopLoss float64, trailing signal.TrailingConfig) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	now := tsm.now()
	tsm.positions[symbol] = &TrailingPosition{
		Symbol:           symbol,
		Direction:        dir,
		EntryPrice:       entryPrice,
		CurrentStopLoss:  stopLoss,
		OriginalStopLoss: stopLoss,
		Trailing:         trailing,
		HighWaterMark:    entryPrice,
		LowWaterMark:     entryPrice,
		OpenedAt:         now,
		LastUpdate:       now,
	}

	tsm.logger.Info().
		Str("symbol", symbol).
		Str("direction", string(dir)).
		Float64("entry", entryPrice).
		Float64("stop_loss", stopLoss).
		Msg("Position added")
}

// RemovePosition removes a position from tracking
func (tsm *TrailingStopManager) RemovePosition(symbol string) {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()
	delete(tsm.positions, symbol)
}

// UpdatePrice feeds a price to the symbol's position. It returns nil when
// nothing changed.
func (tsm *TrailingStopManager) UpdatePrice(symbol string, currentPrice float64) *StopUpdate {
	tsm.mu.Lock()
	defer tsm.mu.Unlock()

	pos, exists := tsm.positions[symbol]
	if !exists {
		return nil
	}
	pos.LastUpdate = tsm.now()

	if ShouldExit(pos.Direction, currentPrice, pos.CurrentStopLoss) {
		return &StopUpdate{
			Symbol:       symbol,
			OldStopLoss:  pos.CurrentStopLoss,
			NewStopLoss:  pos.CurrentStopLoss,
			IsTriggered:  true,
			TriggerPrice: currentPrice,
		}
	}

	if currentPrice > pos.HighWaterMark {
		pos.HighWaterMark = currentPrice
	}
	if currentPrice < pos.LowWaterMark {
		pos.LowWaterMark = currentPrice
	}

	open := OpenPosition{Direction: pos.Direction, Entry: pos.EntryPrice, Stop: pos.CurrentStopLoss}
	if !pos.IsActivated && reachedActivation(open.ProfitPct(currentPrice), pos.Trailing.ActivationPct) {
		pos.IsActivated = true
		tsm.logger.Info().Str("symbol", symbol).Float64("profit_pct", open.ProfitPct(currentPrice)).Msg("Trailing activated")
	}

	newStop, moved := UpdateTrailingStop(open, currentPrice, pos.Trailing)
	if !moved {
		return nil
	}

	oldStop := pos.CurrentStopLoss
	pos.CurrentStopLoss = newStop
	tsm.logger.Debug().
		Str("symbol", symbol).
		Float64("old_stop", oldStop).
		Float64("new_stop", newStop).
		Msg("Stop moved")

	return &StopUpdate{
		Symbol:      symbol,
		OldStopLoss: oldStop,
		NewStopLoss: newStop,
	}
}

// GetPosition returns a copy of a position's trailing stop info
func (tsm *TrailingStopManager) GetPosition(symbol string) *TrailingPosition {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	if pos, exists := tsm.positions[symbol]; exists {
		cp := *pos
		return &cp
	}
	return nil
}

// GetAllPositions returns copies of all tracked positions
func (tsm *TrailingStopManager) GetAllPositions() []*TrailingPosition {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	positions := make([]*TrailingPosition, 0, len(tsm.positions))
	for _, pos := range tsm.positions {
		cp := *pos
		positions = append(positions, &cp)
	}
	return positions
}

// Count returns the number of tracked positions, and how many are on symbol
func (tsm *TrailingStopManager) Count(symbol string) (total, forSymbol int) {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	if _, ok := tsm.positions[symbol]; ok {
		forSymbol = 1
	}
	return len(tsm.positions), forSymbol
}

// OldestOpenedAt returns when the longest-held position was opened, zero if
// nothing is tracked
func (tsm *TrailingStopManager) OldestOpenedAt() time.Time {
	tsm.mu.RLock()
	defer tsm.mu.RUnlock()

	var oldest time.Time
	for _, pos := range tsm.positions {
		if oldest.IsZero() || pos.OpenedAt.Before(oldest) {
			oldest = pos.OpenedAt
		}
	}
	return oldest
}
