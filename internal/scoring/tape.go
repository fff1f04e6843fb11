package scoring

import (
	"math"

	"confluence-engine/internal/market"
)

// TapeScore is the trade-tape domain result
type TapeScore struct {
	market.DomainScore
	Delta             float64          `json:"delta"`          // (buy-sell)/total quantity
	WeightedDelta     float64          `json:"weighted_delta"` // tier-weighted
	RecentDelta       float64          `json:"recent_delta"`   // delta over the most recent window
	Divergence        market.Direction `json:"divergence"`     // CVD divergence direction, NEUTRAL if none
	AggressorBuyRatio float64          `json:"aggressor_buy_ratio"`
	LargeBuyNotional  float64          `json:"large_buy_notional"`
	LargeSellNotional float64          `json:"large_sell_notional"`
	TierCounts        map[string]int   `json:"tier_counts"`
	Bull              float64          `json:"bull"`
	Bear              float64          `json:"bear"`
}

// TapeScorer scores the executed-trade tape
type TapeScorer struct {
	config TapeConfig
}

// NewTapeScorer creates a new tape scorer
func NewTapeScorer(config TapeConfig) *TapeScorer {
	return &TapeScorer{config: config}
}

// Score evaluates trades ordered oldest to newest
func (s *TapeScorer) Score(trades []market.Trade) TapeScore {
	cfg := s.config
	res := TapeScore{
		DomainScore: market.NeutralScore(false),
		Divergence:  market.Neutral,
		TierCounts:  make(map[string]int),
	}

	if len(trades) < cfg.MinTrades {
		res.Insufficient = true
		return res
	}

	var (
		buyQty, sellQty         float64
		weightedBuy, weightedSl float64
		buyCount                int
	)
	for _, t := range trades {
		tier := s.tierFor(t.Notional())
		res.TierCounts[tier.Name]++

		if t.IsBuy {
			buyQty += t.Qty
			weightedBuy += t.Qty * tier.Weight
			buyCount++
			if tier.Large {
				res.LargeBuyNotional += t.Notional()
			}
		} else {
			sellQty += t.Qty
			weightedSl += t.Qty * tier.Weight
			if tier.Large {
				res.LargeSellNotional += t.Notional()
			}
		}
	}

	var bull, bear float64

	res.Delta = ratio(buyQty-sellQty, buyQty+sellQty)
	switch {
	case res.Delta > cfg.StrongRawDeltaThreshold:
		bull += 2
	case res.Delta > cfg.RawDeltaThreshold:
		bull += 1
	case res.Delta < -cfg.StrongRawDeltaThreshold:
		bear += 2
	case res.Delta < -cfg.RawDeltaThreshold:
		bear += 1
	}

	res.WeightedDelta = ratio(weightedBuy-weightedSl, weightedBuy+weightedSl)
	if res.WeightedDelta > cfg.WeightedDeltaThreshold {
		bull += cfg.WeightedDeltaScore
	} else if res.WeightedDelta < -cfg.WeightedDeltaThreshold {
		bear += cfg.WeightedDeltaScore
	}

	res.Divergence = s.divergence(trades)
	switch res.Divergence {
	case market.Long:
		bull += cfg.DivergenceScore
	case market.Short:
		bear += cfg.DivergenceScore
	}

	res.AggressorBuyRatio = float64(buyCount) / float64(len(trades))
	if res.AggressorBuyRatio > cfg.AggressorThreshold {
		bull += cfg.AggressorScore
	} else if 1-res.AggressorBuyRatio > cfg.AggressorThreshold {
		bear += cfg.AggressorScore
	}

	lb, ls := res.LargeBuyNotional, res.LargeSellNotional
	if lb > 0 && lb > ls*cfg.LargeImbalanceRatio {
		bull += cfg.LargeImbalanceScore
	} else if ls > 0 && ls > lb*cfg.LargeImbalanceRatio {
		bear += cfg.LargeImbalanceScore
	}

	recentN := int(math.Ceil(float64(len(trades)) * cfg.RecentWindowFraction))
	res.RecentDelta = rawDelta(trades[len(trades)-recentN:])

	res.Bull, res.Bear = bull, bear
	res.Direction, res.Score, res.Confidence = resolveDirection(bull, bear, cfg.Rule)

	putMetric(res.Metrics, "delta", res.Delta)
	putMetric(res.Metrics, "weighted_delta", res.WeightedDelta)
	putMetric(res.Metrics, "recent_delta", res.RecentDelta)
	putMetric(res.Metrics, "aggressor_buy_ratio", res.AggressorBuyRatio)
	putMetric(res.Metrics, "divergence", res.Divergence.Sign())
	putMetric(res.Metrics, "bull", bull)
	putMetric(res.Metrics, "bear", bear)

	return res
}

// divergence compares the price move between the first and last windows with
// the change in cumulative volume delta from the end of the first window to
// the end of the tape. Opposite movement points toward the contrarian direction.
func (s *TapeScorer) divergence(trades []market.Trade) market.Direction {
	w := s.config.DivergenceWindow
	if len(trades) < w*2 {
		return market.Neutral
	}

	first, last := trades[:w], trades[len(trades)-w:]
	firstAvg, lastAvg := avgPrice(first), avgPrice(last)
	if firstAvg <= 0 {
		return market.Neutral
	}

	cvd := cumulativeDelta(trades)
	movePct := (lastAvg - firstAvg) / firstAvg * 100
	cvdChange := cvd[len(cvd)-1] - cvd[w-1]

	switch {
	case movePct > s.config.DivergenceMinMovePct && cvdChange < 0:
		return market.Short
	case movePct < -s.config.DivergenceMinMovePct && cvdChange > 0:
		return market.Long
	default:
		return market.Neutral
	}
}

// tierFor picks the highest tier whose threshold the notional reaches
func (s *TapeScorer) tierFor(notional float64) TradeTier {
	if len(s.config.Tiers) == 0 {
		return TradeTier{Name: "default", Weight: 1}
	}
	tier := s.config.Tiers[0]
	for _, t := range s.config.Tiers[1:] {
		if notional >= t.MinNotional {
			tier = t
		}
	}
	return tier
}

func avgPrice(trades []market.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range trades {
		sum += t.Price
	}
	return sum / float64(len(trades))
}

// cumulativeDelta returns the running buy-minus-sell quantity after each trade
func cumulativeDelta(trades []market.Trade) []float64 {
	out := make([]float64, len(trades))
	running := 0.0
	for i, t := range trades {
		if t.IsBuy {
			running += t.Qty
		} else {
			running -= t.Qty
		}
		out[i] = running
	}
	return out
}

func rawDelta(trades []market.Trade) float64 {
	var buy, sell float64
	for _, t := range trades {
		if t.IsBuy {
			buy += t.Qty
		} else {
			sell += t.Qty
		}
	}
	return ratio(buy-sell, buy+sell)
}
