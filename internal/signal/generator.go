package signal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"confluence-engine/internal/market"
)

var (
	ErrNoDirection  = errors.New("signal requires a LONG or SHORT direction")
	ErrInvalidEntry = errors.New("entry price must be positive")
	ErrUnknownMode  = errors.New("unknown signal mode")
)

// TrailingConfig is embedded in every signal for the position manager
type TrailingConfig struct {
	ActivationPct float64 `json:"activation_pct"`
	StepPct       float64 `json:"step_pct"`
}

// TradingSignal is an accepted trade idea. It is never modified after creation.
type TradingSignal struct {
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Symbol       string           `json:"symbol"`
	Direction    market.Direction `json:"direction"`
	EntryPrice   float64          `json:"entry_price"`
	StopLoss     float64          `json:"stop_loss"`
	TakeProfit   [3]float64       `json:"take_profit"`
	RiskReward   float64          `json:"risk_reward"`
	Confidence   float64          `json:"confidence"`
	Timeframe    market.Timeframe `json:"timeframe"`
	Triggers     []string         `json:"triggers"`
	ExpiresAt    time.Time        `json:"expires_at"`
	Trailing     TrailingConfig   `json:"trailing_stop"`
	Mode         Mode             `json:"mode"`
	AutoTradable bool             `json:"auto_tradable"`
}

// Request is everything needed to build one signal
type Request struct {
	Symbol       string
	Direction    market.Direction
	Entry        float64
	ATR          float64 // 0 when unknown
	Mode         Mode    // empty means ModeDefault
	Timeframe    market.Timeframe
	Confidence   float64
	AutoTradable bool
	Triggers     []string

	// OpposingLevel is the nearest level in the trade direction, 0 if none
	OpposingLevel float64
	// RSI on the signal timeframe, 0 if unknown. RecentCloses oldest first.
	RSI           float64
	RecentCloses  []float64
	FalseBreakout bool

	Time time.Time // zero means now
}

// Generator builds trading signals
type Generator struct {
	config Config
	now    func() time.Time
}

// NewGenerator creates a new signal generator
func NewGenerator(config Config) *Generator {
	return &Generator{config: config, now: time.Now}
}

// Generate builds a signal. Confidence is only ever reduced here.
func (g *Generator) Generate(req Request) (*TradingSignal, error) {
	if !req.Direction.IsDirectional() {
		return nil, ErrNoDirection
	}
	if req.Entry <= 0 || math.IsNaN(req.Entry) || math.IsInf(req.Entry, 0) {
		return nil, ErrInvalidEntry
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeDefault
	}
	mc, ok := g.config.Modes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	risk := g.StopDistance(req.Entry, req.ATR, mc)
	sign := req.Direction.Sign()

	ts := req.Time
	if ts.IsZero() {
		ts = g.now()
	}

	multiples := [3]float64{mc.MinRR, mc.MinRR + g.config.TP2Extra, mc.MinRR + g.config.TP3Extra}
	sig := &TradingSignal{
		ID:           uuid.New().String(),
		Timestamp:    ts,
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		EntryPrice:   req.Entry,
		StopLoss:     req.Entry - sign*risk,
		RiskReward:   multiples[2],
		Timeframe:    req.Timeframe,
		Triggers:     append([]string(nil), req.Triggers...),
		ExpiresAt:    ts.Add(g.config.Expiry),
		Mode:         mode,
		AutoTradable: req.AutoTradable,
		Trailing: TrailingConfig{
			ActivationPct: mc.TrailActivationPct,
			StepPct:       mc.TrailStepPct,
		},
	}
	for i, m := range multiples {
		sig.TakeProfit[i] = req.Entry + sign*risk*m
	}

	conf := clamp01(req.Confidence)

	// Structural R:R against the nearest level in the way
	if req.OpposingLevel > 0 {
		room := (req.OpposingLevel - req.Entry) * sign
		if rr := room / risk; rr > 0 && rr < mc.MinRR {
			conf *= rr / mc.MinRR
			sig.Triggers = append(sig.Triggers, fmt.Sprintf("structural R:R %.2f below %.1f", rr, mc.MinRR))
		}
	}

	if g.failedSignal(req) {
		conf = applyPenalty(conf, g.config.FailedSignalPenalty, g.config.FailedSignalFloor)
		sig.Triggers = append(sig.Triggers, "RSI extreme against price action")
	}

	if req.FalseBreakout {
		conf = applyPenalty(conf, g.config.FalseBreakoutPenalty, g.config.FalseBreakoutFloor)
		sig.Triggers = append(sig.Triggers, "false breakout risk")
	}

	sig.Confidence = conf
	return sig, nil
}

// ModeConfig returns the sizing table for mode, ModeDefault when empty
func (g *Generator) ModeConfig(mode Mode) (ModeConfig, bool) {
	if mode == "" {
		mode = ModeDefault
	}
	mc, ok := g.config.Modes[mode]
	return mc, ok
}

// StopDistance returns the absolute stop distance for entry
func (g *Generator) StopDistance(entry, atr float64, mc ModeConfig) float64 {
	if atr > 0 {
		return math.Min(atr*g.config.ATRMultiplier, entry*mc.SLPct/100)
	}
	return entry * mc.FallbackSLPct / 100
}

// failedSignal flags an oversold LONG while closes keep falling, or an
// overbought SHORT while closes keep rising
func (g *Generator) failedSignal(req Request) bool {
	if req.RSI <= 0 {
		return false
	}
	n := g.config.FailedLookback
	if len(req.RecentCloses) < n {
		return false
	}
	closes := req.RecentCloses[len(req.RecentCloses)-n:]

	falling, rising := true, true
	for i := 1; i < len(closes); i++ {
		if closes[i] >= closes[i-1] {
			falling = false
		}
		if closes[i] <= closes[i-1] {
			rising = false
		}
	}

	switch req.Direction {
	case market.Long:
		return req.RSI <= g.config.RSIOversold && falling
	case market.Short:
		return req.RSI >= g.config.RSIOverbought && rising
	}
	return false
}

// applyPenalty subtracts penalty but never drops below floor, and never
// raises a confidence already under the floor
func applyPenalty(conf, penalty, floor float64) float64 {
	return math.Max(conf-penalty, math.Min(conf, floor))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
