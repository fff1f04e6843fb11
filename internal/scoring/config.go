package scoring

import (
	"confluence-engine/internal/market"
	"confluence-engine/internal/patterns"
)

// DirectionRule decides when a bull/bear tally becomes a directional call
type DirectionRule struct {
	MinRatio      float64 `json:"min_ratio" yaml:"min_ratio" validate:"gte=1"`                // stronger side must be >= MinRatio x weaker
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lt=1"` // |bull-bear|/(bull+bear) must exceed this
	MaxScore      float64 `json:"max_score" yaml:"max_score" validate:"gt=0"`
}

// DefaultDirectionRule returns the 1.3x / 25% rule
func DefaultDirectionRule() DirectionRule {
	return DirectionRule{
		MinRatio:      1.3,
		MinConfidence: 0.25,
		MaxScore:      10,
	}
}

// OrderBookConfig holds order-book scoring thresholds
type OrderBookConfig struct {
	MinLevels int `json:"min_levels" yaml:"min_levels" validate:"gte=1"`

	DOMBandPct   float64 `json:"dom_band_pct" yaml:"dom_band_pct" validate:"gt=0"` // ±1% of mid
	DOMThreshold float64 `json:"dom_threshold" yaml:"dom_threshold" validate:"gt=0,lt=1"`
	DOMScale     float64 `json:"dom_scale" yaml:"dom_scale" validate:"gte=0"`

	ImbalanceThreshold       float64 `json:"imbalance_threshold" yaml:"imbalance_threshold" validate:"gt=0,lt=1"`
	StrongImbalanceThreshold float64 `json:"strong_imbalance_threshold" yaml:"strong_imbalance_threshold" validate:"gt=0,lt=1"`

	ZonePcts           []float64 `json:"zone_pcts" yaml:"zone_pcts" validate:"min=1,dive,gt=0"`
	ZoneWeights        []float64 `json:"zone_weights" yaml:"zone_weights" validate:"min=1,dive,gte=0"`
	ZoneImbalanceRatio float64   `json:"zone_imbalance_ratio" yaml:"zone_imbalance_ratio" validate:"gt=0,lt=1"`

	PressureDecay     float64 `json:"pressure_decay" yaml:"pressure_decay" validate:"gt=0"` // weight = qty * e^(-distance*decay)
	PressureDominance float64 `json:"pressure_dominance" yaml:"pressure_dominance" validate:"gt=0.5,lt=1"`
	PressureScore     float64 `json:"pressure_score" yaml:"pressure_score" validate:"gte=0"`

	WallMultiplier float64 `json:"wall_multiplier" yaml:"wall_multiplier" validate:"gt=1"`
	WallWindow     int     `json:"wall_window" yaml:"wall_window" validate:"gte=1"` // neighbours on each side
	WallScore      float64 `json:"wall_score" yaml:"wall_score" validate:"gte=0"`
	MaxWallScore   float64 `json:"max_wall_score" yaml:"max_wall_score" validate:"gte=0"`

	TightSpreadPct   float64 `json:"tight_spread_pct" yaml:"tight_spread_pct" validate:"gt=0"`
	MildDOMMin       float64 `json:"mild_dom_min" yaml:"mild_dom_min" validate:"gte=0"`
	CompressionBonus float64 `json:"compression_bonus" yaml:"compression_bonus" validate:"gte=0"`

	Rule DirectionRule `json:"rule" yaml:"rule"`
}

// DefaultOrderBookConfig returns default order-book scoring thresholds
func DefaultOrderBookConfig() OrderBookConfig {
	return OrderBookConfig{
		MinLevels:                5,
		DOMBandPct:               1.0,
		DOMThreshold:             0.3,
		DOMScale:                 4.0,
		ImbalanceThreshold:       0.2,
		StrongImbalanceThreshold: 0.4,
		ZonePcts:                 []float64{0.05, 0.1, 0.25, 0.5, 1.0},
		ZoneWeights:              []float64{1.0, 0.8, 0.6, 0.4, 0.2},
		ZoneImbalanceRatio:       0.2,
		PressureDecay:            100,
		PressureDominance:        0.6,
		PressureScore:            2.0,
		WallMultiplier:           3.0,
		WallWindow:               2,
		WallScore:                0.5,
		MaxWallScore:             1.5,
		TightSpreadPct:           0.02,
		MildDOMMin:               0.1,
		CompressionBonus:         0.5,
		Rule:                     DefaultDirectionRule(),
	}
}

// TradeTier classifies trades by notional
type TradeTier struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	MinNotional float64 `json:"min_notional" yaml:"min_notional" validate:"gte=0"`
	Weight      float64 `json:"weight" yaml:"weight" validate:"gt=0"`
	Large       bool    `json:"large" yaml:"large"` // counts toward large/whale imbalance
}

// TapeConfig holds tape scoring thresholds
type TapeConfig struct {
	MinTrades int `json:"min_trades" yaml:"min_trades" validate:"gte=1"`

	// Tiers must be ordered by ascending MinNotional
	Tiers []TradeTier `json:"tiers" yaml:"tiers" validate:"min=1,dive"`

	RawDeltaThreshold       float64 `json:"raw_delta_threshold" yaml:"raw_delta_threshold" validate:"gt=0,lt=1"`
	StrongRawDeltaThreshold float64 `json:"strong_raw_delta_threshold" yaml:"strong_raw_delta_threshold" validate:"gt=0,lt=1"`
	WeightedDeltaThreshold  float64 `json:"weighted_delta_threshold" yaml:"weighted_delta_threshold" validate:"gt=0,lt=1"`
	WeightedDeltaScore      float64 `json:"weighted_delta_score" yaml:"weighted_delta_score" validate:"gte=0"`

	DivergenceWindow     int     `json:"divergence_window" yaml:"divergence_window" validate:"gte=1"`
	DivergenceMinMovePct float64 `json:"divergence_min_move_pct" yaml:"divergence_min_move_pct" validate:"gte=0"`
	DivergenceScore      float64 `json:"divergence_score" yaml:"divergence_score" validate:"gte=0"`

	AggressorThreshold float64 `json:"aggressor_threshold" yaml:"aggressor_threshold" validate:"gt=0.5,lt=1"`
	AggressorScore     float64 `json:"aggressor_score" yaml:"aggressor_score" validate:"gte=0"`

	LargeImbalanceRatio float64 `json:"large_imbalance_ratio" yaml:"large_imbalance_ratio" validate:"gt=1"`
	LargeImbalanceScore float64 `json:"large_imbalance_score" yaml:"large_imbalance_score" validate:"gte=0"`

	RecentWindowFraction float64 `json:"recent_window_fraction" yaml:"recent_window_fraction" validate:"gt=0,lte=1"`

	Rule DirectionRule `json:"rule" yaml:"rule"`
}

// DefaultTapeConfig returns default tape scoring thresholds
func DefaultTapeConfig() TapeConfig {
	return TapeConfig{
		MinTrades: 5,
		Tiers: []TradeTier{
			{Name: "small", MinNotional: 0, Weight: 1},
			{Name: "medium", MinNotional: 1_000, Weight: 2},
			{Name: "large", MinNotional: 10_000, Weight: 5, Large: true},
			{Name: "whale", MinNotional: 100_000, Weight: 10, Large: true},
		},
		RawDeltaThreshold:       0.10,
		StrongRawDeltaThreshold: 0.20,
		WeightedDeltaThreshold:  0.25,
		WeightedDeltaScore:      2.0,
		DivergenceWindow:        5,
		DivergenceMinMovePct:    0.01,
		DivergenceScore:         4.0,
		AggressorThreshold:      0.65,
		AggressorScore:          1.5,
		LargeImbalanceRatio:     1.3,
		LargeImbalanceScore:     1.5,
		RecentWindowFraction:    0.5,
		Rule:                    DefaultDirectionRule(),
	}
}

// CandleConfig holds per-timeframe candle scoring parameters
type CandleConfig struct {
	MinCandles int `json:"min_candles" yaml:"min_candles" validate:"gte=2"`

	PatternWeights map[patterns.PatternType]float64 `json:"pattern_weights" yaml:"pattern_weights"`
	MinBodyPct     float64                          `json:"min_body_pct" yaml:"min_body_pct" validate:"gt=0"`

	RSIPeriod       int     `json:"rsi_period" yaml:"rsi_period" validate:"gte=2"`
	RSIOversold     float64 `json:"rsi_oversold" yaml:"rsi_oversold" validate:"gt=0,lt=50"`
	RSIExtremeLow   float64 `json:"rsi_extreme_low" yaml:"rsi_extreme_low" validate:"gte=0,lt=50"`
	RSIOverbought   float64 `json:"rsi_overbought" yaml:"rsi_overbought" validate:"gt=50,lt=100"`
	RSIExtremeHigh  float64 `json:"rsi_extreme_high" yaml:"rsi_extreme_high" validate:"gt=50,lte=100"`
	MACDFast        int     `json:"macd_fast" yaml:"macd_fast" validate:"gte=1"`
	MACDSlow        int     `json:"macd_slow" yaml:"macd_slow" validate:"gtfield=MACDFast"`
	MACDSignal      int     `json:"macd_signal" yaml:"macd_signal" validate:"gte=1"`
	MACDScore       float64 `json:"macd_score" yaml:"macd_score" validate:"gte=0"`
	MACDCrossBonus  float64 `json:"macd_cross_bonus" yaml:"macd_cross_bonus" validate:"gte=0"`
	BBPeriod        int     `json:"bb_period" yaml:"bb_period" validate:"gte=2"`
	BBStdDev        float64 `json:"bb_std_dev" yaml:"bb_std_dev" validate:"gt=0"`
	BBBreachScore   float64 `json:"bb_breach_score" yaml:"bb_breach_score" validate:"gte=0"`
	BBSqueezeRatio  float64 `json:"bb_squeeze_ratio" yaml:"bb_squeeze_ratio" validate:"gt=0,lt=1"`
	EMAShort        int     `json:"ema_short" yaml:"ema_short" validate:"gte=1"`
	EMAMid          int     `json:"ema_mid" yaml:"ema_mid" validate:"gtfield=EMAShort"`
	EMALong         int     `json:"ema_long" yaml:"ema_long" validate:"gtfield=EMAMid"`
	EMAStackScore   float64 `json:"ema_stack_score" yaml:"ema_stack_score" validate:"gte=0"`
	ATRPeriod       int     `json:"atr_period" yaml:"atr_period" validate:"gte=1"`
	VolumePeriod    int     `json:"volume_period" yaml:"volume_period" validate:"gte=1"`
	VolumeMultMin   float64 `json:"volume_mult_min" yaml:"volume_mult_min" validate:"gt=0"`
	VolumeMultMax   float64 `json:"volume_mult_max" yaml:"volume_mult_max" validate:"gtefield=VolumeMultMin"`
	VolumeConfirm   float64 `json:"volume_confirm" yaml:"volume_confirm" validate:"gt=0"`
	HighVolRangePct float64 `json:"high_vol_range_pct" yaml:"high_vol_range_pct" validate:"gt=0"`

	Rule DirectionRule `json:"rule" yaml:"rule"`
}

// DefaultPatternWeights is the pattern reliability table
func DefaultPatternWeights() map[patterns.PatternType]float64 {
	return map[patterns.PatternType]float64{
		patterns.BullishEngulfing:   3,
		patterns.BearishEngulfing:   3,
		patterns.MorningStar:        3,
		patterns.EveningStar:        3,
		patterns.ThreeWhiteSoldiers: 3,
		patterns.ThreeBlackCrows:    3,
		patterns.Hammer:             2,
		patterns.InvertedHammer:     2,
		patterns.ShootingStar:       2,
		patterns.HangingMan:         2,
		patterns.PiercingLine:       2,
		patterns.DarkCloudCover:     2,
		patterns.BullishHarami:      2,
		patterns.BearishHarami:      2,
		patterns.Doji:               1,
		patterns.DragonflyDoji:      1,
		patterns.GravestoneDoji:     1,
	}
}

// DefaultCandleConfig returns default candle scoring parameters
func DefaultCandleConfig() CandleConfig {
	return CandleConfig{
		MinCandles:      30,
		PatternWeights:  DefaultPatternWeights(),
		MinBodyPct:      0.1,
		RSIPeriod:       14,
		RSIOversold:     30,
		RSIExtremeLow:   20,
		RSIOverbought:   70,
		RSIExtremeHigh:  80,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		MACDScore:       1,
		MACDCrossBonus:  2,
		BBPeriod:        20,
		BBStdDev:        2,
		BBBreachScore:   1,
		BBSqueezeRatio:  0.6,
		EMAShort:        9,
		EMAMid:          21,
		EMALong:         50,
		EMAStackScore:   2,
		ATRPeriod:       14,
		VolumePeriod:    20,
		VolumeMultMin:   0.5,
		VolumeMultMax:   2.0,
		VolumeConfirm:   1.2,
		HighVolRangePct: 3.0,
		Rule:            DefaultDirectionRule(),
	}
}

// TimeframeWeight is one row of the MTF weight table
type TimeframeWeight struct {
	Timeframe market.Timeframe `json:"timeframe" yaml:"timeframe" validate:"required"`
	Weight    float64          `json:"weight" yaml:"weight" validate:"gt=0,lte=1"`
}

// MTFConfig holds multi-timeframe aggregation parameters
type MTFConfig struct {
	Weights        []TimeframeWeight  `json:"weights" yaml:"weights" validate:"min=1,dive"`
	Margin         float64            `json:"margin" yaml:"margin" validate:"gte=0,lt=1"`
	HTFTimeframes  []market.Timeframe `json:"htf_timeframes" yaml:"htf_timeframes"`
	StructureSwing int                `json:"structure_swing" yaml:"structure_swing" validate:"gte=1"` // same lookback as level swings
}

// DefaultMTFConfig returns the 1d..1m weight table
func DefaultMTFConfig() MTFConfig {
	return MTFConfig{
		Weights: []TimeframeWeight{
			{Timeframe: market.TF1d, Weight: 0.25},
			{Timeframe: market.TF4h, Weight: 0.20},
			{Timeframe: market.TF1h, Weight: 0.20},
			{Timeframe: market.TF15m, Weight: 0.15},
			{Timeframe: market.TF5m, Weight: 0.10},
			{Timeframe: market.TF1m, Weight: 0.10},
		},
		Margin:         0.15,
		HTFTimeframes:  []market.Timeframe{market.TF1d, market.TF4h},
		StructureSwing: 5,
	}
}
