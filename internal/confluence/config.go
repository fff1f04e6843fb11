package confluence

// DomainWeights are the relative weights of the three scoring domains
type DomainWeights struct {
	OrderBook float64 `json:"order_book" yaml:"order_book" validate:"gte=0,lte=1"`
	Tape      float64 `json:"tape" yaml:"tape" validate:"gte=0,lte=1"`
	Candle    float64 `json:"candle" yaml:"candle" validate:"gte=0,lte=1"`
}

// DefaultDomainWeights returns the 0.40 / 0.35 / 0.25 split
func DefaultDomainWeights() DomainWeights {
	return DomainWeights{OrderBook: 0.40, Tape: 0.35, Candle: 0.25}
}

// Weights lets a fixed weight set act as a WeightSource
func (w DomainWeights) Weights() DomainWeights { return w }

// Sum returns the total weight
func (w DomainWeights) Sum() float64 { return w.OrderBook + w.Tape + w.Candle }

// Policy is the ordered confluence adjustment table. Stages run in the order
// the fields are declared; every threshold is tunable.
type Policy struct {
	// 1. hard spread ceiling, percent
	MaxSpreadPct float64 `json:"max_spread_pct" yaml:"max_spread_pct" validate:"gt=0"`

	// 2. domains that must agree
	Quorum int `json:"quorum" yaml:"quorum" validate:"gte=1,lte=3"`

	// 3. base = min(MaxBase, BaseConfidence + weightedScore*ScoreFactor)
	BaseConfidence float64 `json:"base_confidence" yaml:"base_confidence" validate:"gte=0,lte=1"`
	ScoreFactor    float64 `json:"score_factor" yaml:"score_factor" validate:"gte=0"`
	MaxBase        float64 `json:"max_base" yaml:"max_base" validate:"gte=0,lte=1"`
	WeakTapeDelta  float64 `json:"weak_tape_delta" yaml:"weak_tape_delta" validate:"gte=0"`
	WeakTapeFactor float64 `json:"weak_tape_factor" yaml:"weak_tape_factor" validate:"gte=0,lte=1"`

	// 4. multi-timeframe alignment
	MTFFullAligned   int     `json:"mtf_full_aligned" yaml:"mtf_full_aligned"`
	MTFFullBonus     float64 `json:"mtf_full_bonus" yaml:"mtf_full_bonus"`
	MTFStrongAligned int     `json:"mtf_strong_aligned" yaml:"mtf_strong_aligned"`
	MTFStrongBonus   float64 `json:"mtf_strong_bonus" yaml:"mtf_strong_bonus"`
	MTFCapEvaluated  int     `json:"mtf_cap_evaluated" yaml:"mtf_cap_evaluated"`
	MTFCapAligned    int     `json:"mtf_cap_aligned" yaml:"mtf_cap_aligned"`
	MTFCap           float64 `json:"mtf_cap" yaml:"mtf_cap" validate:"gte=0,lte=1"`
	MTFWeakAligned   int     `json:"mtf_weak_aligned" yaml:"mtf_weak_aligned"`
	MTFWeakPenalty   float64 `json:"mtf_weak_penalty" yaml:"mtf_weak_penalty"`

	// 5. domain bonuses
	AllAgreeBonus     float64 `json:"all_agree_bonus" yaml:"all_agree_bonus"`
	StrongDomainBonus float64 `json:"strong_domain_bonus" yaml:"strong_domain_bonus"`
	StrongOrderBook   float64 `json:"strong_order_book" yaml:"strong_order_book"`
	StrongCandle      float64 `json:"strong_candle" yaml:"strong_candle"`
	DivergenceBonus   float64 `json:"divergence_bonus" yaml:"divergence_bonus"`
	RecentDeltaMin    float64 `json:"recent_delta_min" yaml:"recent_delta_min"`
	RecentDeltaBonus  float64 `json:"recent_delta_bonus" yaml:"recent_delta_bonus"`
	VolumeBonus       float64 `json:"volume_bonus" yaml:"volume_bonus"`
	SqueezeBonus      float64 `json:"squeeze_bonus" yaml:"squeeze_bonus"`
	DOMMin            float64 `json:"dom_min" yaml:"dom_min"`
	DOMBonus          float64 `json:"dom_bonus" yaml:"dom_bonus"`

	// 6. penalties
	MinRiskReward        float64 `json:"min_risk_reward" yaml:"min_risk_reward" validate:"gt=0"`
	RiskRewardFloor      float64 `json:"risk_reward_floor" yaml:"risk_reward_floor" validate:"gte=0,lte=1"`
	CautionSpreadPct     float64 `json:"caution_spread_pct" yaml:"caution_spread_pct" validate:"gte=0"`
	CautionSpreadPenalty float64 `json:"caution_spread_penalty" yaml:"caution_spread_penalty"`
	HighVolPenalty       float64 `json:"high_vol_penalty" yaml:"high_vol_penalty"`
	FalseBreakoutPenalty float64 `json:"false_breakout_penalty" yaml:"false_breakout_penalty"`

	// 7. opposing higher-timeframe structure clamps into this band
	HTFOpposedMin float64 `json:"htf_opposed_min" yaml:"htf_opposed_min" validate:"gte=0,lte=1"`
	HTFOpposedMax float64 `json:"htf_opposed_max" yaml:"htf_opposed_max" validate:"gtefield=HTFOpposedMin,lte=1"`

	// 8. final ceiling, 9. acceptance floor
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence" validate:"gt=0,lte=1"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`

	Fallback FallbackPolicy `json:"fallback" yaml:"fallback"`
}

// FallbackPolicy configures the majority vote used when confluence fails
type FallbackPolicy struct {
	DomainVote    float64 `json:"domain_vote" yaml:"domain_vote" validate:"gte=0"`
	AuxVote       float64 `json:"aux_vote" yaml:"aux_vote" validate:"gte=0"`
	MinVotes      float64 `json:"min_votes" yaml:"min_votes" validate:"gte=0"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" validate:"gte=0,lte=1"`
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence" validate:"gtefield=MinConfidence,lte=1"`
	MarginSpan    float64 `json:"margin_span" yaml:"margin_span" validate:"gte=0"`
}

// DefaultPolicy returns the documented confluence policy
func DefaultPolicy() Policy {
	return Policy{
		MaxSpreadPct: 0.10,
		Quorum:       2,

		BaseConfidence: 0.62,
		ScoreFactor:    0.026,
		MaxBase:        0.92,
		WeakTapeDelta:  0.25,
		WeakTapeFactor: 0.5,

		MTFFullAligned:   6,
		MTFFullBonus:     0.10,
		MTFStrongAligned: 5,
		MTFStrongBonus:   0.07,
		MTFCapEvaluated:  5,
		MTFCapAligned:    4,
		MTFCap:           0.88,
		MTFWeakAligned:   3,
		MTFWeakPenalty:   0.08,

		AllAgreeBonus:     0.10,
		StrongDomainBonus: 0.04,
		StrongOrderBook:   6,
		StrongCandle:      5,
		DivergenceBonus:   0.05,
		RecentDeltaMin:    0.15,
		RecentDeltaBonus:  0.04,
		VolumeBonus:       0.04,
		SqueezeBonus:      0.02,
		DOMMin:            0.2,
		DOMBonus:          0.03,

		MinRiskReward:        1.5,
		RiskRewardFloor:      0.85,
		CautionSpreadPct:     0.05,
		CautionSpreadPenalty: 0.03,
		HighVolPenalty:       0.05,
		FalseBreakoutPenalty: 0.06,

		HTFOpposedMin: 0.50,
		HTFOpposedMax: 0.70,

		MaxConfidence: 0.95,
		MinConfidence: 0.60,

		Fallback: FallbackPolicy{
			DomainVote:    1,
			AuxVote:       0.5,
			MinVotes:      1.5,
			MinConfidence: 0.55,
			MaxConfidence: 0.75,
			MarginSpan:    0.20,
		},
	}
}
