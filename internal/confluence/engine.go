package confluence

import (
	"fmt"
	"math"
	"strings"

	"confluence-engine/internal/market"
)

// Auxiliary carries the non-domain inputs to the policy
type Auxiliary struct {
	SpreadPct   float64 `json:"spread_pct"`
	RiskReward  float64 `json:"risk_reward"` // estimated, 0 when unknown
	RecentDelta float64 `json:"recent_delta"`
	TapeDelta   float64 `json:"tape_delta"`
	DOM         float64 `json:"dom"`

	Divergence      market.Direction `json:"divergence"`
	HighVolatility  bool             `json:"high_volatility"`
	FalseBreakout   bool             `json:"false_breakout"`
	VolumeConfirmed bool             `json:"volume_confirmed"`
	BBSqueeze       bool             `json:"bb_squeeze"`
	CandleDirection market.Direction `json:"candle_direction"` // primary timeframe

	// MTF timeframes voting each way, and timeframes with data
	MTFLong      int              `json:"mtf_long"`
	MTFShort     int              `json:"mtf_short"`
	MTFEvaluated int              `json:"mtf_evaluated"`
	HTFTrend     market.Direction `json:"htf_trend"`

	// Secondary trend votes used only by the fallback
	EMATrend       market.Direction `json:"ema_trend"`
	StructureTrend market.Direction `json:"structure_trend"`
}

func (a Auxiliary) aligned(dir market.Direction) int {
	switch dir {
	case market.Long:
		return a.MTFLong
	case market.Short:
		return a.MTFShort
	default:
		return 0
	}
}

// Input is one confluence evaluation
type Input struct {
	OrderBook market.DomainScore `json:"order_book"`
	Tape      market.DomainScore `json:"tape"`
	Candle    market.DomainScore `json:"candle"`
	Aux       Auxiliary          `json:"aux"`
}

// Step records the confidence after one policy stage
type Step struct {
	Stage      string  `json:"stage"`
	Confidence float64 `json:"confidence"`
}

// Result is the confluence decision. Direction NEUTRAL means no signal and
// always comes with zero confidence.
type Result struct {
	Direction    market.Direction `json:"direction"`
	Confidence   float64          `json:"confidence"`
	Confluence   bool             `json:"confluence"`
	AutoTradable bool             `json:"auto_tradable"`
	Fallback     bool             `json:"fallback"`
	Agreeing     int              `json:"agreeing"`
	Grade        string           `json:"grade"`
	Reason       string           `json:"reason"`
	Reasoning    []string         `json:"reasoning,omitempty"`
	Steps        []Step           `json:"steps,omitempty"`
}

// HasSignal reports whether a direction was chosen
func (r Result) HasSignal() bool {
	return r.Direction.IsDirectional()
}

// Engine merges the domain scores under a Policy
type Engine struct {
	policy  Policy
	weights WeightSource
}

// NewEngine creates a new confluence engine. A nil weight source uses the
// default static weights.
func NewEngine(policy Policy, weights WeightSource) *Engine {
	if weights == nil {
		weights = DefaultDomainWeights()
	}
	return &Engine{policy: policy, weights: weights}
}

// Policy returns the active policy
func (e *Engine) Policy() Policy { return e.policy }

// Evaluate runs the policy stages in order
func (e *Engine) Evaluate(in Input) Result {
	p := e.policy
	aux := in.Aux

	// 1. spread ceiling
	if math.IsNaN(aux.SpreadPct) || aux.SpreadPct > p.MaxSpreadPct {
		return Result{
			Direction: market.Neutral,
			Grade:     scoreToGrade(0),
			Reason:    fmt.Sprintf("spread %.3f%% exceeds %.2f%% ceiling", aux.SpreadPct, p.MaxSpreadPct),
		}
	}

	// 2. quorum
	dir, agreeing := majority(in)
	if agreeing < p.Quorum {
		return e.fallback(in, fmt.Sprintf("no quorum: %d of 3 domains agree", agreeing))
	}
	sign := dir.Sign()

	res := Result{Direction: dir, Agreeing: agreeing}
	trace := func(stage string, conf float64) {
		res.Steps = append(res.Steps, Step{Stage: stage, Confidence: conf})
	}
	note := func(format string, args ...interface{}) {
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(format, args...))
	}

	// 3. weighted base
	w := e.weights.Weights()
	tapeWeight := w.Tape
	if in.Tape.Direction != dir && math.Abs(aux.TapeDelta) < p.WeakTapeDelta {
		tapeWeight *= p.WeakTapeFactor
	}
	ws := agreement(in.OrderBook, dir)*w.OrderBook +
		agreement(in.Tape, dir)*tapeWeight +
		agreement(in.Candle, dir)*w.Candle
	ws = math.Max(0, ws)
	conf := math.Min(p.MaxBase, p.BaseConfidence+ws*p.ScoreFactor)
	note("%d/3 domains %s, weighted score %.2f", agreeing, dir, ws)
	trace("base", conf)

	// 4. multi-timeframe alignment
	if aux.MTFEvaluated > 0 {
		aligned := aux.aligned(dir)
		switch {
		case aligned >= p.MTFFullAligned:
			conf += p.MTFFullBonus
		case aligned >= p.MTFStrongAligned:
			conf += p.MTFStrongBonus
		}
		if aux.MTFEvaluated >= p.MTFCapEvaluated && aligned < p.MTFCapAligned {
			conf = math.Min(conf, p.MTFCap)
		}
		if aligned < p.MTFWeakAligned {
			conf -= p.MTFWeakPenalty
		}
		note("MTF %d/%d aligned", aligned, aux.MTFEvaluated)
		trace("mtf", conf)
	}

	// 5. bonuses
	if agreeing == 3 {
		conf += p.AllAgreeBonus
	} else if (in.OrderBook.Direction == dir && in.OrderBook.Score >= p.StrongOrderBook) ||
		(in.Candle.Direction == dir && in.Candle.Score >= p.StrongCandle) {
		conf += p.StrongDomainBonus
		note("strong agreeing domain")
	}
	if aux.Divergence == dir {
		conf += p.DivergenceBonus
		note("CVD divergence confirms %s", dir)
	}
	if aux.RecentDelta*sign > p.RecentDeltaMin {
		conf += p.RecentDeltaBonus
		note("recent tape delta %.2f aligned", aux.RecentDelta)
	}
	if aux.CandleDirection == dir {
		if aux.VolumeConfirmed {
			conf += p.VolumeBonus
			note("volume confirmed")
		}
		if aux.BBSqueeze {
			conf += p.SqueezeBonus
			note("Bollinger squeeze")
		}
	}
	if aux.DOM*sign > p.DOMMin {
		conf += p.DOMBonus
		note("DOM %.2f aligned", aux.DOM)
	}
	trace("bonuses", conf)

	// 6. penalties
	if aux.RiskReward > 0 && aux.RiskReward < p.MinRiskReward {
		conf *= math.Max(p.RiskRewardFloor, aux.RiskReward/p.MinRiskReward)
		note("R:R %.2f below %.1f", aux.RiskReward, p.MinRiskReward)
	}
	if aux.SpreadPct > p.CautionSpreadPct {
		conf -= p.CautionSpreadPenalty
		note("spread %.3f%% in caution band", aux.SpreadPct)
	}
	if aux.HighVolatility {
		conf -= p.HighVolPenalty
		note("high volatility")
	}
	if aux.FalseBreakout {
		conf -= p.FalseBreakoutPenalty
		note("false breakout risk")
	}
	trace("penalties", conf)

	// 7. higher-timeframe opposition
	if aux.HTFTrend == dir.Opposite() && dir.IsDirectional() {
		conf = clamp(conf, p.HTFOpposedMin, p.HTFOpposedMax)
		note("opposes %s higher-timeframe structure", aux.HTFTrend)
		trace("htf", conf)
	}

	// 8. ceiling
	conf = clamp(conf, 0, p.MaxConfidence)

	// 9. acceptance
	if conf < p.MinConfidence {
		return e.fallback(in, fmt.Sprintf("confluence confidence %.2f below %.2f", conf, p.MinConfidence))
	}

	res.Confidence = conf
	res.Confluence = true
	res.AutoTradable = true
	res.Grade = scoreToGrade(conf)
	res.Reason = strings.Join(res.Reasoning, "; ")
	trace("final", conf)
	return res
}

// majority returns the direction most domains share and how many share it
func majority(in Input) (market.Direction, int) {
	long, short := 0, 0
	for _, d := range []market.Direction{in.OrderBook.Direction, in.Tape.Direction, in.Candle.Direction} {
		switch d {
		case market.Long:
			long++
		case market.Short:
			short++
		}
	}
	switch {
	case long > short:
		return market.Long, long
	case short > long:
		return market.Short, short
	default:
		return market.Neutral, long
	}
}

// agreement is +score when the domain agrees, -score when it opposes
func agreement(s market.DomainScore, dir market.Direction) float64 {
	switch s.Direction {
	case dir:
		return s.Score
	case dir.Opposite():
		return -s.Score
	default:
		return 0
	}
}

// scoreToGrade converts a confidence to a letter grade for display
func scoreToGrade(score float64) string {
	if score >= 0.90 {
		return "A+"
	} else if score >= 0.85 {
		return "A"
	} else if score >= 0.75 {
		return "B+"
	} else if score >= 0.70 {
		return "B"
	} else if score >= 0.60 {
		return "C"
	} else if score >= 0.50 {
		return "D"
	}
	return "F"
}
