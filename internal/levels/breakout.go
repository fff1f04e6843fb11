package levels

import (
	"fmt"
	"math"

	"confluence-engine/internal/indicators"
	"confluence-engine/internal/market"
)

// BreakoutInput is everything needed to judge one level
type BreakoutInput struct {
	Level   Level
	Candles []market.Candle // last candle is the breakout bar
	Price   float64         // current price; falls back to the last close

	// Resting book volume near mid. Pressure is taken in the breakout
	// direction, bids over asks for LONG.
	BidVolume float64
	AskVolume float64
	TapeDelta float64 // signed, in [-1,1]
}

func (in BreakoutInput) pressure(dir market.Direction) float64 {
	with, against := in.BidVolume, in.AskVolume
	if dir == market.Short {
		with, against = against, with
	}
	if against <= 0 {
		return 0
	}
	return with / against
}

// BreakoutSignal is an emitted breakout with its trade zone
type BreakoutSignal struct {
	Level             Level            `json:"level"`
	Direction         market.Direction `json:"direction"`
	Confidence        float64          `json:"confidence"`
	EntryZoneLow      float64          `json:"entry_zone_low"`
	EntryZoneHigh     float64          `json:"entry_zone_high"`
	InvalidationPrice float64          `json:"invalidation_price"`
	VolumeRatio       float64          `json:"volume_ratio"`
	Reasons           []string         `json:"reasons"`
}

// BreakoutConfirmer scores level crosses
type BreakoutConfirmer struct {
	config BreakoutConfig
}

// NewBreakoutConfirmer creates a new breakout confirmer
func NewBreakoutConfirmer(config BreakoutConfig) *BreakoutConfirmer {
	return &BreakoutConfirmer{config: config}
}

// Check returns a breakout signal when the level was crossed and the
// confirmation score reaches MinConfidence, otherwise nil
func (bc *BreakoutConfirmer) Check(in BreakoutInput) *BreakoutSignal {
	cfg := bc.config
	n := len(in.Candles)
	if n < 2 || in.Level.Price <= 0 {
		return nil
	}

	level := in.Level.Price
	last := in.Candles[n-1]
	prevClose := in.Candles[n-2].Close
	price := in.Price
	if price <= 0 {
		price = last.Close
	}

	margin := level * cfg.MarginPct / 100
	var dir market.Direction
	switch {
	case prevClose <= level && price >= level+margin:
		dir = market.Long
	case prevClose >= level && price <= level-margin:
		dir = market.Short
	default:
		return nil
	}

	score := cfg.BaseScore
	var reasons []string

	volRatio := indicators.VolumeRatio(in.Candles, cfg.VolumePeriod)
	if bonus := tierBonus(cfg.VolumeTiers, volRatio); bonus > 0 {
		score += bonus
		reasons = append(reasons, fmt.Sprintf("volume %.2fx average", volRatio))
	}
	if volRatio < cfg.LowVolumeRatio {
		score -= cfg.LowVolumePenalty
		reasons = append(reasons, "low volume breakout")
	}

	pressure := in.pressure(dir)
	if bonus := tierBonus(cfg.PressureTiers, pressure); bonus > 0 {
		score += bonus
		reasons = append(reasons, fmt.Sprintf("book pressure %.2fx", pressure))
	}

	if in.TapeDelta*dir.Sign() > cfg.TapeDeltaMin {
		score += cfg.TapeBonus
		reasons = append(reasons, "tape delta aligned")
	}

	score += in.Level.Strength / 10 * cfg.StrengthWeight

	closedBeyond := (dir == market.Long && last.Close > level) || (dir == market.Short && last.Close < level)
	if closedBeyond {
		score += cfg.CloseBeyondBonus
		reasons = append(reasons, "closed beyond level")
	} else {
		score -= cfg.NoClosePenalty
		reasons = append(reasons, "no close beyond level")
	}

	if r := last.Range(); r <= 0 || last.Body()/r < cfg.WeakBodyPct {
		score -= cfg.WeakBodyPenalty
		reasons = append(reasons, "weak breakout candle")
	}

	score = math.Max(0, math.Min(1, score))
	if score < cfg.MinConfidence {
		return nil
	}

	zone := level * cfg.EntryZonePct / 100
	inval := level * cfg.InvalidationPct / 100
	sig := &BreakoutSignal{
		Level:       in.Level,
		Direction:   dir,
		Confidence:  score,
		VolumeRatio: volRatio,
		Reasons:     reasons,
	}
	if dir == market.Long {
		sig.EntryZoneLow, sig.EntryZoneHigh = level, level+zone
		sig.InvalidationPrice = level - inval
	} else {
		sig.EntryZoneLow, sig.EntryZoneHigh = level-zone, level
		sig.InvalidationPrice = level + inval
	}
	return sig
}

// CheckAll runs Check against every level with the same market context
func (bc *BreakoutConfirmer) CheckAll(levels []Level, in BreakoutInput) []BreakoutSignal {
	var out []BreakoutSignal
	for _, lvl := range levels {
		in.Level = lvl
		if sig := bc.Check(in); sig != nil {
			out = append(out, *sig)
		}
	}
	return out
}
