package levels

// Config holds support/resistance detection parameters
type Config struct {
	SwingLookback  int `json:"swing_lookback" yaml:"swing_lookback" validate:"gte=1"`
	ProfileBuckets int `json:"profile_buckets" yaml:"profile_buckets" validate:"gte=2"`
	ProfileTopN    int `json:"profile_top_n" yaml:"profile_top_n" validate:"gte=0"`

	// Merge tolerance is the average candle range% clamped to this band
	MinTolerancePct float64 `json:"min_tolerance_pct" yaml:"min_tolerance_pct" validate:"gt=0"`
	MaxTolerancePct float64 `json:"max_tolerance_pct" yaml:"max_tolerance_pct" validate:"gtefield=MinTolerancePct"`

	TouchScore     float64 `json:"touch_score" yaml:"touch_score" validate:"gte=0"`
	MaxTouchScore  float64 `json:"max_touch_score" yaml:"max_touch_score" validate:"gte=0"`
	MaxVolumeScore float64 `json:"max_volume_score" yaml:"max_volume_score" validate:"gte=0"`
	MaxStrength    float64 `json:"max_strength" yaml:"max_strength" validate:"gt=0"`
}

// DefaultConfig returns default level detection parameters
func DefaultConfig() Config {
	return Config{
		SwingLookback:   5,
		ProfileBuckets:  24,
		ProfileTopN:     3,
		MinTolerancePct: 0.3,
		MaxTolerancePct: 1.0,
		TouchScore:      2,
		MaxTouchScore:   6,
		MaxVolumeScore:  4,
		MaxStrength:     10,
	}
}

// Tier awards Bonus once a ratio reaches Min. Tiers are checked in order.
type Tier struct {
	Min   float64 `json:"min" yaml:"min" validate:"gt=0"`
	Bonus float64 `json:"bonus" yaml:"bonus"`
}

// BreakoutConfig holds breakout confirmation parameters
type BreakoutConfig struct {
	MarginPct    float64 `json:"margin_pct" yaml:"margin_pct" validate:"gte=0"` // cross must clear the level by this much
	BaseScore    float64 `json:"base_score" yaml:"base_score" validate:"gte=0,lte=1"`
	VolumePeriod int     `json:"volume_period" yaml:"volume_period" validate:"gte=1"`

	VolumeTiers   []Tier `json:"volume_tiers" yaml:"volume_tiers" validate:"dive"`
	PressureTiers []Tier `json:"pressure_tiers" yaml:"pressure_tiers" validate:"dive"`

	TapeDeltaMin     float64 `json:"tape_delta_min" yaml:"tape_delta_min" validate:"gte=0"`
	TapeBonus        float64 `json:"tape_bonus" yaml:"tape_bonus"`
	StrengthWeight   float64 `json:"strength_weight" yaml:"strength_weight"` // bonus = strength/10 * weight
	CloseBeyondBonus float64 `json:"close_beyond_bonus" yaml:"close_beyond_bonus"`

	LowVolumeRatio   float64 `json:"low_volume_ratio" yaml:"low_volume_ratio" validate:"gte=0"`
	LowVolumePenalty float64 `json:"low_volume_penalty" yaml:"low_volume_penalty"`
	WeakBodyPct      float64 `json:"weak_body_pct" yaml:"weak_body_pct" validate:"gte=0,lte=1"`
	WeakBodyPenalty  float64 `json:"weak_body_penalty" yaml:"weak_body_penalty"`
	NoClosePenalty   float64 `json:"no_close_penalty" yaml:"no_close_penalty"`

	MinConfidence   float64 `json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
	EntryZonePct    float64 `json:"entry_zone_pct" yaml:"entry_zone_pct" validate:"gte=0"`
	InvalidationPct float64 `json:"invalidation_pct" yaml:"invalidation_pct" validate:"gte=0"`
}

// DefaultBreakoutConfig returns default breakout confirmation parameters
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		MarginPct:    0.1,
		BaseScore:    0.5,
		VolumePeriod: 20,
		VolumeTiers: []Tier{
			{Min: 2.0, Bonus: 0.15},
			{Min: 1.5, Bonus: 0.10},
			{Min: 1.2, Bonus: 0.05},
		},
		PressureTiers: []Tier{
			{Min: 1.5, Bonus: 0.10},
			{Min: 1.2, Bonus: 0.05},
		},
		TapeDeltaMin:     0.1,
		TapeBonus:        0.08,
		StrengthWeight:   0.10,
		CloseBeyondBonus: 0.07,
		LowVolumeRatio:   1.0,
		LowVolumePenalty: 0.10,
		WeakBodyPct:      0.4,
		WeakBodyPenalty:  0.08,
		NoClosePenalty:   0.10,
		MinConfidence:    0.55,
		EntryZonePct:     0.3,
		InvalidationPct:  0.2,
	}
}

func tierBonus(tiers []Tier, value float64) float64 {
	for _, t := range tiers {
		if value >= t.Min {
			return t.Bonus
		}
	}
	return 0
}
