package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the emotional filter limits
type Config struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	MaxLossStreak       int           `json:"max_loss_streak" yaml:"max_loss_streak" validate:"gte=1"`
	Cooldown            time.Duration `json:"cooldown" yaml:"cooldown" validate:"gt=0"`
	MaxDailyDrawdownPct float64       `json:"max_daily_drawdown_pct" yaml:"max_daily_drawdown_pct" validate:"gt=0,lte=100"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxLossStreak:       3,
		Cooldown:            30 * time.Minute,
		MaxDailyDrawdownPct: 5,
	}
}

// Decision is the answer to CanOpenTrade
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// TradingState is the filter's full mutable state
type TradingState struct {
	LossStreak      int       `json:"loss_streak"`
	WinStreak       int       `json:"win_streak"`
	CooldownUntil   time.Time `json:"cooldown_until"`
	DayStartBalance float64   `json:"day_start_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	DayKey          string    `json:"day_key"`
	DailyStopActive bool      `json:"daily_stop_active"`
	DrawdownPct     float64   `json:"drawdown_pct"`
}

// EmotionalFilter blocks trading after a run of losses (cooldown) and after
// the day's drawdown crosses its limit (daily stop, cleared at UTC rollover).
// Only RecordTradeOutcome and SetBalance change balances and streaks.
type EmotionalFilter struct {
	mu     sync.Mutex
	config Config
	state  TradingState
	now    func() time.Time
	onTrip func(reason string)
	logger zerolog.Logger
}

// NewEmotionalFilter creates a new filter
func NewEmotionalFilter(config Config, logger zerolog.Logger) *EmotionalFilter {
	return &EmotionalFilter{
		config: config,
		now:    time.Now,
		logger: logger.With().Str("component", "emotional_filter").Logger(),
	}
}

// SetClock replaces the time source, for tests
func (f *EmotionalFilter) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// OnTrip sets a callback for when a cooldown or daily stop starts
func (f *EmotionalFilter) OnTrip(handler func(reason string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrip = handler
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// refresh applies time-based transitions. Caller holds the lock.
func (f *EmotionalFilter) refresh(now time.Time) {
	if today := dayKey(now); f.state.DayKey != today {
		if f.state.DayKey != "" {
			f.logger.Info().Str("from", f.state.DayKey).Str("to", today).Msg("Day rolled over, daily stop cleared")
		}
		f.state.DayKey = today
		f.state.DailyStopActive = false
		f.state.DayStartBalance = f.state.CurrentBalance
		f.state.DrawdownPct = 0
	}

	// cooldown served: re-arm the streak
	if !f.state.CooldownUntil.IsZero() && !now.Before(f.state.CooldownUntil) {
		f.state.CooldownUntil = time.Time{}
		f.state.LossStreak = 0
	}
}

// updateDrawdown recomputes the day's drawdown and trips the daily stop.
// Caller holds the lock.
func (f *EmotionalFilter) updateDrawdown() {
	if f.state.DayStartBalance <= 0 {
		f.state.DrawdownPct = 0
		return
	}
	f.state.DrawdownPct = math.Max(0, (f.state.DayStartBalance-f.state.CurrentBalance)/f.state.DayStartBalance*100)

	if !f.state.DailyStopActive && f.state.DrawdownPct >= f.config.MaxDailyDrawdownPct {
		f.state.DailyStopActive = true
		f.trip(fmt.Sprintf("daily drawdown %.2f%%", f.state.DrawdownPct))
	}
}

// trip must be called with the lock held
func (f *EmotionalFilter) trip(reason string) {
	f.logger.Warn().
		Str("reason", reason).
		Int("loss_streak", f.state.LossStreak).
		Float64("drawdown_pct", f.state.DrawdownPct).
		Msg("Emotional filter tripped")

	if f.onTrip != nil {
		go f.onTrip(reason)
	}
}

// RecordTradeOutcome applies one closed trade's pnl in quote currency
func (f *EmotionalFilter) RecordTradeOutcome(pnl float64) {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		f.logger.Warn().Msg("Ignoring non-finite pnl")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.refresh(now)

	if f.state.DayStartBalance == 0 {
		f.state.DayStartBalance = f.state.CurrentBalance
	}
	f.state.CurrentBalance += pnl

	switch {
	case pnl < 0:
		f.state.LossStreak++
		f.state.WinStreak = 0
		if f.state.LossStreak >= f.config.MaxLossStreak && f.state.CooldownUntil.IsZero() {
			f.state.CooldownUntil = now.Add(f.config.Cooldown)
			f.trip(fmt.Sprintf("%d consecutive losses", f.state.LossStreak))
		}
	case pnl > 0:
		f.state.WinStreak++
		f.state.LossStreak = 0
	}

	f.updateDrawdown()
}

// SetBalance syncs the running balance, e.g. from the account
func (f *EmotionalFilter) SetBalance(balance float64) {
	if math.IsNaN(balance) || math.IsInf(balance, 0) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.refresh(f.now())
	f.state.CurrentBalance = balance
	if f.state.DayStartBalance == 0 {
		f.state.DayStartBalance = balance
	}
	f.updateDrawdown()
}

// CanOpenTrade is the gate an execution collaborator consults before acting
func (f *EmotionalFilter) CanOpenTrade() Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.config.Enabled {
		return Decision{Allowed: true}
	}

	now := f.now()
	f.refresh(now)

	if now.Before(f.state.CooldownUntil) {
		remaining := f.state.CooldownUntil.Sub(now)
		return Decision{Reason: fmt.Sprintf("Cooldown active after %d consecutive losses, %v remaining",
			f.state.LossStreak, remaining.Round(time.Second))}
	}
	if f.state.DailyStopActive {
		return Decision{Reason: fmt.Sprintf("Daily drawdown stop: %.2f%% >= %.2f%% until next UTC day",
			f.state.DrawdownPct, f.config.MaxDailyDrawdownPct)}
	}
	return Decision{Allowed: true}
}

// Reset clears streaks, cooldown and the daily stop, and rebases the day
func (f *EmotionalFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.LossStreak = 0
	f.state.WinStreak = 0
	f.state.CooldownUntil = time.Time{}
	f.state.DailyStopActive = false
	f.state.DayStartBalance = f.state.CurrentBalance
	f.state.DrawdownPct = 0
	f.state.DayKey = dayKey(f.now())

	f.logger.Info().Float64("balance", f.state.CurrentBalance).Msg("Emotional filter reset")
}

// State returns a copy of the current state with expired cooldowns and day
// rollover already applied
func (f *EmotionalFilter) State() TradingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh(f.now())
	return f.state
}

// Restore replaces the state, e.g. from persisted storage. A stale day key
// is rolled over on the next call.
func (f *EmotionalFilter) Restore(state TradingState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

// Config returns the active limits
func (f *EmotionalFilter) Config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}
