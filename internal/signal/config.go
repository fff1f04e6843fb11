package signal

import "time"

// Mode selects how tight stops and targets are
type Mode string

const (
	ModeScalping Mode = "scalping"
	ModeDefault  Mode = "default"
	ModeSwing    Mode = "swing"
)

// ModeConfig holds the per-mode sizing table. Percentages are of entry price.
type ModeConfig struct {
	SLPct              float64 `json:"sl_pct" yaml:"sl_pct" validate:"gt=0"`                   // ATR stop cap
	FallbackSLPct      float64 `json:"fallback_sl_pct" yaml:"fallback_sl_pct" validate:"gt=0"` // stop when ATR is unknown
	MinRR              float64 `json:"min_rr" yaml:"min_rr" validate:"gt=0"`
	TrailActivationPct float64 `json:"trail_activation_pct" yaml:"trail_activation_pct" validate:"gt=0"`
	TrailStepPct       float64 `json:"trail_step_pct" yaml:"trail_step_pct" validate:"gt=0"`
}

// Config holds signal construction parameters
type Config struct {
	Modes         map[Mode]ModeConfig `json:"modes" yaml:"modes" validate:"min=1,dive"`
	ATRMultiplier float64             `json:"atr_multiplier" yaml:"atr_multiplier" validate:"gt=0"`
	TP2Extra      float64             `json:"tp2_extra" yaml:"tp2_extra" validate:"gt=0"` // R beyond the TP1 multiple
	TP3Extra      float64             `json:"tp3_extra" yaml:"tp3_extra" validate:"gtfield=TP2Extra"`
	Expiry        time.Duration       `json:"expiry" yaml:"expiry" validate:"gt=0"`

	RSIOversold         float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought       float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	FailedLookback      int     `json:"failed_lookback" yaml:"failed_lookback" validate:"gte=2"`
	FailedSignalPenalty float64 `json:"failed_signal_penalty" yaml:"failed_signal_penalty" validate:"gte=0"`
	FailedSignalFloor   float64 `json:"failed_signal_floor" yaml:"failed_signal_floor" validate:"gte=0,lte=1"`

	FalseBreakoutPenalty float64 `json:"false_breakout_penalty" yaml:"false_breakout_penalty" validate:"gte=0"`
	FalseBreakoutFloor   float64 `json:"false_breakout_floor" yaml:"false_breakout_floor" validate:"gte=0,lte=1"`
}

// DefaultModes returns the scalping / default / swing table
func DefaultModes() map[Mode]ModeConfig {
	return map[Mode]ModeConfig{
		ModeScalping: {SLPct: 0.55, FallbackSLPct: 0.55, MinRR: 1.5, TrailActivationPct: 0.30, TrailStepPct: 0.20},
		ModeDefault:  {SLPct: 0.70, FallbackSLPct: 1.00, MinRR: 2.0, TrailActivationPct: 0.60, TrailStepPct: 0.35},
		ModeSwing:    {SLPct: 0.80, FallbackSLPct: 1.30, MinRR: 2.0, TrailActivationPct: 1.00, TrailStepPct: 0.60},
	}
}

// DefaultConfig returns default signal construction parameters
func DefaultConfig() Config {
	return Config{
		Modes:                DefaultModes(),
		ATRMultiplier:        1.35,
		TP2Extra:             1.2,
		TP3Extra:             2.5,
		Expiry:               30 * time.Minute,
		RSIOversold:          30,
		RSIOverbought:        70,
		FailedLookback:       3,
		FailedSignalPenalty:  0.12,
		FailedSignalFloor:    0.45,
		FalseBreakoutPenalty: 0.08,
		FalseBreakoutFloor:   0.50,
	}
}
