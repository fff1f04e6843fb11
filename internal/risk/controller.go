package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig is returned by UpdateConfig for rejected limits
var ErrInvalidConfig = errors.New("invalid risk config")

var validate = validator.New()

// Level grades a check result
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Check is an advisory gate result. A failed check is not an error.
type Check struct {
	OK     bool   `json:"ok"`
	Level  Level  `json:"level"`
	Reason string `json:"reason,omitempty"`
}

func pass() Check { return Check{OK: true, Level: LevelOK} }

// Config holds risk limits
type Config struct {
	MaxPositionsTotal        int     `json:"max_positions_total" yaml:"max_positions_total" validate:"gte=1"`
	MaxPositionsPerSymbol    int     `json:"max_positions_per_symbol" yaml:"max_positions_per_symbol" validate:"gte=1,ltefield=MaxPositionsTotal"`
	MaxDailyTrades           int     `json:"max_daily_trades" yaml:"max_daily_trades" validate:"gte=1"`
	MaxPositionDurationHours float64 `json:"max_position_duration_hours" yaml:"max_position_duration_hours" validate:"gt=0"`
	BalanceWarning           float64 `json:"balance_warning" yaml:"balance_warning" validate:"gtefield=BalanceCritical"`
	BalanceCritical          float64 `json:"balance_critical" yaml:"balance_critical" validate:"gte=0"`

	MaxRiskPerTrade    float64 `json:"max_risk_per_trade" yaml:"max_risk_per_trade" validate:"gt=0,lte=100"` // % of balance
	PositionSizeMethod string  `json:"position_size_method" yaml:"position_size_method" validate:"oneof=fixed percent kelly"`
	FixedPositionSize  float64 `json:"fixed_position_size" yaml:"fixed_position_size" validate:"gte=0"` // quote currency
	KellyMinTrades     int     `json:"kelly_min_trades" yaml:"kelly_min_trades" validate:"gte=1"`       // closed trades before kelly replaces percent sizing
}

// TradeStats accumulates closed-trade results for kelly sizing
type TradeStats struct {
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"` // positive
}

// Trades is the number of decisive closed trades
func (s TradeStats) Trades() int { return s.Wins + s.Losses }

// WinRate is wins over decisive trades, 0 without history
func (s TradeStats) WinRate() float64 {
	if s.Trades() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades())
}

// PayoffRatio is the average win over the average loss, 0 if either is unknown
func (s TradeStats) PayoffRatio() float64 {
	if s.Wins == 0 || s.Losses == 0 || s.GrossLoss <= 0 {
		return 0
	}
	return (s.GrossProfit / float64(s.Wins)) / (s.GrossLoss / float64(s.Losses))
}

// DefaultConfig returns default risk limits
func DefaultConfig() Config {
	return Config{
		MaxPositionsTotal:        5,
		MaxPositionsPerSymbol:    1,
		MaxDailyTrades:           20,
		MaxPositionDurationHours: 24,
		BalanceWarning:           100,
		BalanceCritical:          50,
		MaxRiskPerTrade:          1,
		PositionSizeMethod:       "percent",
		FixedPositionSize:        100,
		KellyMinTrades:           20,
	}
}

// Validate checks the limits are coherent
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Controller evaluates position, trade-count, duration and balance limits.
// RecordTrade is the only mutation of the daily counter.
type Controller struct {
	mu          sync.RWMutex
	config      Config
	dailyTrades int
	dayKey      string
	stats       TradeStats
	now         func() time.Time
	logger      zerolog.Logger
}

// NewController creates a new risk controller
func NewController(config Config, logger zerolog.Logger) *Controller {
	return &Controller{
		config: config,
		now:    time.Now,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

// SetClock replaces the time source, for tests
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// tradesToday must be called with the lock held
func (c *Controller) tradesToday() int {
	if c.dayKey != dayKey(c.now()) {
		return 0
	}
	return c.dailyTrades
}

// CheckPositionLimits checks open position counts, total and for one symbol
func (c *Controller) CheckPositionLimits(total, forSymbol int) Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if total >= c.config.MaxPositionsTotal {
		return Check{Level: LevelCritical, Reason: fmt.Sprintf("max positions reached (%d/%d)", total, c.config.MaxPositionsTotal)}
	}
	if forSymbol >= c.config.MaxPositionsPerSymbol {
		return Check{Level: LevelCritical, Reason: fmt.Sprintf("max positions for symbol reached (%d/%d)", forSymbol, c.config.MaxPositionsPerSymbol)}
	}
	return pass()
}

// CheckDailyTradeLimit fails once today's counter reaches the limit
func (c *Controller) CheckDailyTradeLimit() Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n := c.tradesToday(); n >= c.config.MaxDailyTrades {
		return Check{Level: LevelCritical, Reason: fmt.Sprintf("daily trade limit reached (%d/%d)", n, c.config.MaxDailyTrades)}
	}
	return pass()
}

// CheckPositionDuration fails once a position has been open too long
func (c *Controller) CheckPositionDuration(openedAt time.Time) Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	held := c.now().Sub(openedAt)
	limit := time.Duration(c.config.MaxPositionDurationHours * float64(time.Hour))
	if held >= limit {
		return Check{Level: LevelCritical, Reason: fmt.Sprintf("position held %s, limit %s", held.Round(time.Minute), limit)}
	}
	return pass()
}

// CheckBalance warns below BalanceWarning and fails below BalanceCritical
func (c *Controller) CheckBalance(balance float64) Check {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case balance < c.config.BalanceCritical:
		return Check{Level: LevelCritical, Reason: fmt.Sprintf("balance %.2f below critical %.2f", balance, c.config.BalanceCritical)}
	case balance < c.config.BalanceWarning:
		return Check{OK: true, Level: LevelWarning, Reason: fmt.Sprintf("balance %.2f below warning %.2f", balance, c.config.BalanceWarning)}
	}
	return pass()
}

// RecordTrade counts one opened trade against today's limit
func (c *Controller) RecordTrade() {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := dayKey(c.now())
	if c.dayKey != today {
		c.dayKey = today
		c.dailyTrades = 0
	}
	c.dailyTrades++
	c.logger.Debug().Int("daily_trades", c.dailyTrades).Str("day", today).Msg("Trade recorded")
}

// RecordResult adds a closed trade's pnl to the sizing statistics.
// Breakeven trades are ignored.
func (c *Controller) RecordResult(pnl float64) {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) || pnl == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if pnl > 0 {
		c.stats.Wins++
		c.stats.GrossProfit += pnl
	} else {
		c.stats.Losses++
		c.stats.GrossLoss -= pnl
	}
}

// Stats returns the closed-trade statistics
func (c *Controller) Stats() TradeStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// RestoreStats replaces the statistics, e.g. from persisted state
func (c *Controller) RestoreStats(stats TradeStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
}

// DailyTrades returns today's trade count
func (c *Controller) DailyTrades() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tradesToday()
}

// RestoreDailyTrades sets the counter for the given day, e.g. from persisted state
func (c *Controller) RestoreDailyTrades(day string, trades int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayKey = day
	c.dailyTrades = trades
}

// DayKey returns the day the counter belongs to
func (c *Controller) DayKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dayKey
}

// Config returns the active limits
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// UpdateConfig validates and swaps in new limits
func (c *Controller) UpdateConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.config = config
	c.mu.Unlock()

	c.logger.Info().
		Int("max_positions_total", config.MaxPositionsTotal).
		Int("max_daily_trades", config.MaxDailyTrades).
		Msg("Risk config updated")
	return nil
}

// PositionSize returns the quantity to trade for the configured sizing method
func (c *Controller) PositionSize(balance, entryPrice, stopLoss float64) float64 {
	c.mu.RLock()
	cfg, stats := c.config, c.stats
	c.mu.RUnlock()

	if entryPrice <= 0 {
		return 0
	}

	switch cfg.PositionSizeMethod {
	case "fixed":
		return cfg.FixedPositionSize / entryPrice
	case "kelly":
		if stats.Trades() < cfg.KellyMinTrades {
			return percentSize(balance, entryPrice, stopLoss, cfg.MaxRiskPerTrade)
		}
		return kellySize(balance, entryPrice, stopLoss, stats)
	default:
		return percentSize(balance, entryPrice, stopLoss, cfg.MaxRiskPerTrade)
	}
}

// percentSize risks riskPct of balance between entry and stop
func percentSize(balance, entryPrice, stopLoss, riskPct float64) float64 {
	if stopLoss <= 0 || balance <= 0 {
		return 0
	}
	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return 0
	}
	return balance * (riskPct / 100) / riskPerUnit
}

// kellySize risks a half-Kelly fraction of balance, capped at 25%, using the
// recorded win rate and payoff ratio
func kellySize(balance, entryPrice, stopLoss float64, stats TradeStats) float64 {
	b := stats.PayoffRatio()
	if b <= 0 || stopLoss <= 0 || balance <= 0 {
		return 0
	}
	p := stats.WinRate()
	kelly := (b*p - (1 - p)) / b
	if kelly <= 0 {
		return 0
	}
	fraction := math.Min(kelly/2, 0.25)

	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return 0
	}
	return balance * fraction / riskPerUnit
}

// Metrics returns a snapshot for status endpoints
func (c *Controller) Metrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"daily_trades":             c.tradesToday(),
		"max_daily_trades":         c.config.MaxDailyTrades,
		"max_positions_total":      c.config.MaxPositionsTotal,
		"max_positions_per_symbol": c.config.MaxPositionsPerSymbol,
		"max_position_hours":       c.config.MaxPositionDurationHours,
		"balance_warning":          c.config.BalanceWarning,
		"balance_critical":         c.config.BalanceCritical,
		"position_size_method":     c.config.PositionSizeMethod,
		"win_rate":                 c.stats.WinRate(),
		"closed_trades":            c.stats.Trades(),
	}
}
