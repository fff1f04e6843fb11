package scoring

import (
	"math"

	"confluence-engine/internal/market"
)

// resolveDirection turns bull/bear tallies into a direction, a capped score
// and a confidence. The stronger side must exceed the weaker by MinRatio and
// the confidence must exceed MinConfidence, otherwise the result is NEUTRAL
// with score 0.
func resolveDirection(bull, bear float64, rule DirectionRule) (market.Direction, float64, float64) {
	total := bull + bear
	if total <= 0 {
		return market.Neutral, 0, 0
	}

	confidence := math.Abs(bull-bear) / total
	stronger, weaker, dir := bull, bear, market.Long
	if bear > bull {
		stronger, weaker, dir = bear, bull, market.Short
	}

	if stronger < weaker*rule.MinRatio || confidence <= rule.MinConfidence {
		return market.Neutral, 0, confidence
	}
	return dir, math.Min(stronger, rule.MaxScore), confidence
}

// ratio returns num/den, or 0 when den is not positive
func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// putMetric stores only finite values so breakdowns stay JSON-encodable
func putMetric(m map[string]float64, key string, v float64) {
	if finite(v) {
		m[key] = v
	}
}
