package scoring

import (
	"math"

	"confluence-engine/internal/analysis"
	"confluence-engine/internal/market"
)

// TimeframeReading is one row of the MTF table
type TimeframeReading struct {
	Timeframe         market.Timeframe `json:"timeframe"`
	Weight            float64          `json:"weight"`
	Direction         market.Direction `json:"direction"`
	Score             float64          `json:"score"`
	Available         bool             `json:"available"`
	StructureOverride bool             `json:"structure_override,omitempty"`
}

// MTFResult is the candle-MTF domain result
type MTFResult struct {
	market.DomainScore
	Readings      []TimeframeReading `json:"readings"`
	LongWeight    float64            `json:"long_weight"`
	ShortWeight   float64            `json:"short_weight"`
	NeutralWeight float64            `json:"neutral_weight"`
	Aligned       int                `json:"aligned"`
	Evaluated     int                `json:"evaluated"`
	HTFTrend      market.Direction   `json:"htf_trend"`
}

// MTFAggregator combines per-timeframe candle scores
type MTFAggregator struct {
	config MTFConfig
	trend  *analysis.TrendAnalyzer
}

// NewMTFAggregator creates a new multi-timeframe aggregator
func NewMTFAggregator(config MTFConfig) *MTFAggregator {
	return &MTFAggregator{
		config: config,
		trend:  analysis.NewTrendAnalyzer(config.StructureSwing),
	}
}

// Aggregate buckets each timeframe's weight by direction. A NEUTRAL reading
// is replaced by the swing-structure trend of the same timeframe when that
// trend is directional.
func (a *MTFAggregator) Aggregate(scores map[market.Timeframe]CandleScore, candles map[market.Timeframe][]market.Candle) MTFResult {
	res := MTFResult{
		DomainScore: market.NeutralScore(false),
		HTFTrend:    a.HTFTrend(candles),
	}

	for _, row := range a.config.Weights {
		reading := TimeframeReading{
			Timeframe: row.Timeframe,
			Weight:    row.Weight,
			Direction: market.Neutral,
		}

		score, ok := scores[row.Timeframe]
		if !ok || score.Insufficient {
			res.Readings = append(res.Readings, reading)
			continue
		}

		reading.Available = true
		reading.Direction = score.Direction
		reading.Score = score.Score
		if reading.Direction == market.Neutral {
			if structure := a.trend.AnalyzeStructure(candles[row.Timeframe]); structure.Trend.IsDirectional() {
				reading.Direction = structure.Trend
				reading.StructureOverride = true
			}
		}

		res.Evaluated++
		switch reading.Direction {
		case market.Long:
			res.LongWeight += row.Weight
		case market.Short:
			res.ShortWeight += row.Weight
		default:
			res.NeutralWeight += row.Weight
		}
		res.Readings = append(res.Readings, reading)
	}

	if res.Evaluated == 0 {
		res.Insufficient = true
		return res
	}

	switch {
	case res.LongWeight-res.ShortWeight > a.config.Margin:
		res.Direction = market.Long
	case res.ShortWeight-res.LongWeight > a.config.Margin:
		res.Direction = market.Short
	default:
		return res
	}

	var weightSum, weighted float64
	for _, r := range res.Readings {
		if r.Available && r.Direction == res.Direction {
			res.Aligned++
			weightSum += r.Weight
			weighted += r.Weight * r.Score
		}
	}
	res.Score = ratio(weighted, weightSum)
	res.Confidence = math.Abs(res.LongWeight - res.ShortWeight)

	putMetric(res.Metrics, "long_weight", res.LongWeight)
	putMetric(res.Metrics, "short_weight", res.ShortWeight)
	putMetric(res.Metrics, "aligned", float64(res.Aligned))
	putMetric(res.Metrics, "evaluated", float64(res.Evaluated))

	return res
}

// HTFTrend returns the structural trend of the first higher timeframe that
// has one, checked in configured order
func (a *MTFAggregator) HTFTrend(candles map[market.Timeframe][]market.Candle) market.Direction {
	for _, tf := range a.config.HTFTimeframes {
		if trend := a.trend.AnalyzeStructure(candles[tf]).Trend; trend.IsDirectional() {
			return trend
		}
	}
	return market.Neutral
}

// StructureTrend exposes the swing-structure classifier for one window
func (a *MTFAggregator) StructureTrend(candles []market.Candle) market.Direction {
	return a.trend.AnalyzeStructure(candles).Trend
}
