package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/circuit"
	"confluence-engine/internal/confluence"
	"confluence-engine/internal/events"
	"confluence-engine/internal/market"
	"confluence-engine/internal/risk"
)

// ErrInvalidOutcome is returned for outcomes that cannot be applied
var ErrInvalidOutcome = errors.New("invalid trade outcome")

// DomainCalls is what each domain said when the trade was taken
type DomainCalls struct {
	OrderBook market.Direction `json:"order_book"`
	Tape      market.Direction `json:"tape"`
	Candle    market.Direction `json:"candle"`
}

// Outcome is one closed trade reported by the execution collaborator
type Outcome struct {
	SignalID  string           `json:"signal_id,omitempty"`
	Symbol    string           `json:"symbol" binding:"required"`
	Direction market.Direction `json:"direction" binding:"required"`
	PnL       float64          `json:"pnl"`
	Balance   float64          `json:"balance,omitempty"` // account balance after the trade, 0 if unknown
	Domains   DomainCalls      `json:"domains"`
	ClosedAt  time.Time        `json:"closed_at"`
}

// realized is the direction the market actually paid
func (o Outcome) realized() market.Direction {
	switch {
	case o.PnL > 0:
		return o.Direction
	case o.PnL < 0:
		return o.Direction.Opposite()
	}
	return market.Neutral
}

// Exposure describes the account when a new trade is considered
type Exposure struct {
	Symbol         string    `json:"symbol"`
	OpenTotal      int       `json:"open_total"`
	OpenForSymbol  int       `json:"open_for_symbol"`
	OldestOpenedAt time.Time `json:"oldest_opened_at"` // zero skips the duration check
	Balance        float64   `json:"balance"`          // 0 skips the balance check
	EntryPrice     float64   `json:"entry_price,omitempty"`
	StopLoss       float64   `json:"stop_loss,omitempty"`
}

// Decision aggregates every gate. Size is set for an allowed trade when the
// exposure carries balance, entry and stop.
type Decision struct {
	Allowed    bool                  `json:"allowed"`
	Reasons    []string              `json:"reasons,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Checks     map[string]risk.Check `json:"checks"`
	Filter     circuit.Decision      `json:"filter"`
	Size       float64               `json:"size,omitempty"`
	SizeMethod string                `json:"size_method,omitempty"`
}

// Gatekeeper owns the stateful gates and the online weights. Outcome updates
// are applied and persisted in order under a single mutex.
type Gatekeeper struct {
	mu      sync.Mutex
	risk    *risk.Controller
	filter  *circuit.EmotionalFilter
	weights *confluence.OnlineWeights
	store   StateStore
	bus     *events.EventBus
	logger  zerolog.Logger
}

// New creates a Gatekeeper. A nil store keeps state in memory only.
func New(rc *risk.Controller, ef *circuit.EmotionalFilter, ow *confluence.OnlineWeights, store StateStore, bus *events.EventBus, logger zerolog.Logger) *Gatekeeper {
	if store == nil {
		store = NewMemoryStore()
	}
	gk := &Gatekeeper{
		risk:    rc,
		filter:  ef,
		weights: ow,
		store:   store,
		bus:     bus,
		logger:  logger.With().Str("component", "gatekeeper").Logger(),
	}
	ef.OnTrip(bus.PublishFilterTripped)
	return gk
}

// Risk exposes the risk controller for read-only checks and config updates
func (gk *Gatekeeper) Risk() *risk.Controller { return gk.risk }

// Filter exposes the emotional filter
func (gk *Gatekeeper) Filter() *circuit.EmotionalFilter { return gk.filter }

// Weights exposes the online weights, which the confluence engine reads
func (gk *Gatekeeper) Weights() *confluence.OnlineWeights { return gk.weights }

// Evaluate runs every gate for a prospective trade
func (gk *Gatekeeper) Evaluate(ctx context.Context, exp Exposure) Decision {
	gk.mu.Lock()
	defer gk.mu.Unlock()

	d := Decision{
		Allowed: true,
		Checks: map[string]risk.Check{
			"positions":    gk.risk.CheckPositionLimits(exp.OpenTotal, exp.OpenForSymbol),
			"daily_trades": gk.risk.CheckDailyTradeLimit(),
		},
		Filter: gk.filter.CanOpenTrade(),
	}
	if !exp.OldestOpenedAt.IsZero() {
		d.Checks["duration"] = gk.risk.CheckPositionDuration(exp.OldestOpenedAt)
	}
	if exp.Balance > 0 {
		d.Checks["balance"] = gk.risk.CheckBalance(exp.Balance)
	}

	if !d.Filter.Allowed {
		d.Allowed = false
		d.Reasons = append(d.Reasons, d.Filter.Reason)
	}
	for _, name := range []string{"positions", "duration", "daily_trades", "balance"} {
		chk, ok := d.Checks[name]
		if !ok {
			continue
		}
		if !chk.OK {
			d.Allowed = false
			d.Reasons = append(d.Reasons, chk.Reason)
		} else if chk.Level == risk.LevelWarning {
			d.Warnings = append(d.Warnings, chk.Reason)
		}
	}

	if !d.Allowed {
		gk.logger.Info().Str("symbol", exp.Symbol).Strs("reasons", d.Reasons).Msg("Trade blocked")
		gk.bus.PublishGateBlocked(exp.Symbol, d.Reasons)
		return d
	}

	if exp.Balance > 0 && exp.EntryPrice > 0 && exp.StopLoss > 0 {
		d.Size = gk.risk.PositionSize(exp.Balance, exp.EntryPrice, exp.StopLoss)
		d.SizeMethod = gk.risk.Config().PositionSizeMethod
	}
	return d
}

// RecordOpen counts a trade the execution collaborator opened against the
// daily limit and persists the new state
func (gk *Gatekeeper) RecordOpen(ctx context.Context, symbol string) Snapshot {
	gk.mu.Lock()
	defer gk.mu.Unlock()

	gk.risk.RecordTrade()
	snap := gk.persist(ctx)
	gk.logger.Info().Str("symbol", symbol).Int("daily_trades", snap.DailyTrades).Msg("Trade opened")
	return snap
}

// ResetFilter clears a tripped emotional filter and persists the cleared
// state so a restart does not bring the block back
func (gk *Gatekeeper) ResetFilter(ctx context.Context) Snapshot {
	gk.mu.Lock()
	defer gk.mu.Unlock()

	gk.filter.Reset()
	return gk.persist(ctx)
}

// persist saves the current state. Caller holds the lock.
func (gk *Gatekeeper) persist(ctx context.Context) Snapshot {
	snap := gk.snapshot()
	if err := gk.store.Save(ctx, snap); err != nil {
		gk.logger.Error().Err(err).Msg("Failed to persist gate state")
	}
	return snap
}

// RecordOutcome applies a closed trade to the filter, the sizing statistics
// and the weights, then persists the new state. Persistence failures are
// logged and do not fail the call. Trades count against the daily limit when
// they open, see RecordOpen.
func (gk *Gatekeeper) RecordOutcome(ctx context.Context, o Outcome) (Snapshot, error) {
	if !o.Direction.IsDirectional() || math.IsNaN(o.PnL) || math.IsInf(o.PnL, 0) {
		return Snapshot{}, fmt.Errorf("%w: direction %q pnl %v", ErrInvalidOutcome, o.Direction, o.PnL)
	}

	gk.mu.Lock()
	defer gk.mu.Unlock()

	gk.filter.RecordTradeOutcome(o.PnL)
	if o.Balance > 0 {
		gk.filter.SetBalance(o.Balance)
	}
	gk.risk.RecordResult(o.PnL)
	w := gk.weights.Update(confluence.TradeFeedback{
		Realized:  o.realized(),
		OrderBook: o.Domains.OrderBook,
		Tape:      o.Domains.Tape,
		Candle:    o.Domains.Candle,
	})

	snap := gk.persist(ctx)

	gk.logger.Info().
		Str("symbol", o.Symbol).
		Str("direction", string(o.Direction)).
		Float64("pnl", o.PnL).
		Int("loss_streak", snap.Filter.LossStreak).
		Float64("w_orderbook", w.OrderBook).
		Float64("w_tape", w.Tape).
		Float64("w_candle", w.Candle).
		Msg("Trade outcome recorded")
	gk.bus.PublishTradeOutcome(o.Symbol, string(o.Direction), o.PnL)

	return snap, nil
}

// Restore reloads persisted state. Missing state is not an error.
func (gk *Gatekeeper) Restore(ctx context.Context) error {
	snap, err := gk.store.Load(ctx)
	if errors.Is(err, ErrNoState) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load gate state: %w", err)
	}

	gk.mu.Lock()
	defer gk.mu.Unlock()

	gk.filter.Restore(snap.Filter)
	gk.risk.RestoreDailyTrades(snap.DayKey, snap.DailyTrades)
	gk.risk.RestoreStats(snap.Stats)
	if snap.Weights.Sum() > 0 {
		gk.weights.Restore(snap.Weights, snap.WeightUpdates)
	}

	gk.logger.Info().
		Time("saved_at", snap.SavedAt).
		Int("daily_trades", snap.DailyTrades).
		Int("weight_updates", snap.WeightUpdates).
		Msg("Gate state restored")
	return nil
}

// Snapshot returns the current state
func (gk *Gatekeeper) Snapshot() Snapshot {
	gk.mu.Lock()
	defer gk.mu.Unlock()
	return gk.snapshot()
}

func (gk *Gatekeeper) snapshot() Snapshot {
	return Snapshot{
		Filter:        gk.filter.State(),
		DayKey:        gk.risk.DayKey(),
		DailyTrades:   gk.risk.DailyTrades(),
		Weights:       gk.weights.Snapshot(),
		WeightUpdates: gk.weights.Updates(),
		Stats:         gk.risk.Stats(),
		SavedAt:       time.Now(),
	}
}
