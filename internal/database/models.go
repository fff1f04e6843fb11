package database

import (
	"time"

	"confluence-engine/internal/gate"
	"confluence-engine/internal/market"
	"confluence-engine/internal/signal"
)

// SignalRecord is a persisted trading signal
type SignalRecord struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Direction    market.Direction `json:"direction"`
	Timeframe    market.Timeframe `json:"timeframe"`
	Mode         signal.Mode      `json:"mode"`
	EntryPrice   float64          `json:"entry_price"`
	StopLoss     float64          `json:"stop_loss"`
	TakeProfit   [3]float64       `json:"take_profit"`
	RiskReward   float64          `json:"risk_reward"`
	Confidence   float64          `json:"confidence"`
	Triggers     []string         `json:"triggers"`
	AutoTradable bool             `json:"auto_tradable"`
	Timestamp    time.Time        `json:"timestamp"`
	ExpiresAt    time.Time        `json:"expires_at"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewSignalRecord converts a generated signal into its row form
func NewSignalRecord(sig *signal.TradingSignal) *SignalRecord {
	return &SignalRecord{
		ID:           sig.ID,
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		Timeframe:    sig.Timeframe,
		Mode:         sig.Mode,
		EntryPrice:   sig.EntryPrice,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
		RiskReward:   sig.RiskReward,
		Confidence:   sig.Confidence,
		Triggers:     append([]string(nil), sig.Triggers...),
		AutoTradable: sig.AutoTradable,
		Timestamp:    sig.Timestamp,
		ExpiresAt:    sig.ExpiresAt,
	}
}

// OutcomeRecord is a persisted closed trade
type OutcomeRecord struct {
	ID        int64            `json:"id"`
	SignalID  *string          `json:"signal_id,omitempty"`
	Symbol    string           `json:"symbol"`
	Direction market.Direction `json:"direction"`
	PnL       float64          `json:"pnl"`
	Balance   *float64         `json:"balance,omitempty"`
	Domains   gate.DomainCalls `json:"domains"`
	ClosedAt  time.Time        `json:"closed_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewOutcomeRecord converts a reported outcome into its row form. Optional
// fields map to NULL.
func NewOutcomeRecord(o gate.Outcome) *OutcomeRecord {
	rec := &OutcomeRecord{
		Symbol:    o.Symbol,
		Direction: o.Direction,
		PnL:       o.PnL,
		Domains:   o.Domains,
		ClosedAt:  o.ClosedAt,
	}
	if o.SignalID != "" {
		id := o.SignalID
		rec.SignalID = &id
	}
	if o.Balance > 0 {
		b := o.Balance
		rec.Balance = &b
	}
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now().UTC()
	}
	return rec
}
