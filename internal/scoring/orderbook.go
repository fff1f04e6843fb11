package scoring

import (
	"fmt"
	"math"

	"confluence-engine/internal/market"
)

// OrderBookScore is the order-book domain result
type OrderBookScore struct {
	market.DomainScore
	MidPrice         float64   `json:"mid_price"`
	SpreadPct        float64   `json:"-"` // +Inf on an empty side
	DOM              float64   `json:"dom"`
	Imbalance        float64   `json:"imbalance"`
	ZoneImbalances   []float64 `json:"zone_imbalances"`
	BidPressureShare float64   `json:"bid_pressure_share"`
	BidWalls         int       `json:"bid_walls"`
	AskWalls         int       `json:"ask_walls"`
	Bull             float64   `json:"bull"`
	Bear             float64   `json:"bear"`
}

// OrderBookScorer scores bid/ask ladders
type OrderBookScorer struct {
	config OrderBookConfig
}

// NewOrderBookScorer creates a new order-book scorer
func NewOrderBookScorer(config OrderBookConfig) *OrderBookScorer {
	return &OrderBookScorer{config: config}
}

// Score evaluates one order book. An empty side yields NEUTRAL, score 0 and
// an infinite spread; fewer than MinLevels on a side is flagged insufficient.
func (s *OrderBookScorer) Score(book *market.OrderBook) OrderBookScore {
	cfg := s.config
	res := OrderBookScore{
		DomainScore: market.NeutralScore(false),
		SpreadPct:   math.Inf(1),
	}

	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		res.Insufficient = true
		return res
	}

	mid := book.Mid()
	res.MidPrice = mid
	res.SpreadPct = book.SpreadPct()
	putMetric(res.Metrics, "spread_pct", res.SpreadPct)
	putMetric(res.Metrics, "mid_price", mid)

	if len(book.Bids) < cfg.MinLevels || len(book.Asks) < cfg.MinLevels {
		res.Insufficient = true
		return res
	}

	var bull, bear float64

	// Depth of market within the band around mid
	bandBid := market.SideVolume(book.Bids, mid, cfg.DOMBandPct, true)
	bandAsk := market.SideVolume(book.Asks, mid, cfg.DOMBandPct, false)
	res.DOM = ratio(bandBid-bandAsk, bandBid+bandAsk)
	if res.DOM > cfg.DOMThreshold {
		bull += cfg.DOMScale * res.DOM
	} else if res.DOM < -cfg.DOMThreshold {
		bear += cfg.DOMScale * -res.DOM
	}

	// Whole-book imbalance
	totalBid := market.SideVolume(book.Bids, mid, 0, true)
	totalAsk := market.SideVolume(book.Asks, mid, 0, false)
	res.Imbalance = ratio(totalBid-totalAsk, totalBid+totalAsk)
	switch {
	case res.Imbalance > cfg.StrongImbalanceThreshold:
		bull += 2
	case res.Imbalance > cfg.ImbalanceThreshold:
		bull += 1
	case res.Imbalance < -cfg.StrongImbalanceThreshold:
		bear += 2
	case res.Imbalance < -cfg.ImbalanceThreshold:
		bear += 1
	}

	// Nested zones, closest zone weighted most
	res.ZoneImbalances = make([]float64, len(cfg.ZonePcts))
	for i, pct := range cfg.ZonePcts {
		zb := market.SideVolume(book.Bids, mid, pct, true)
		za := market.SideVolume(book.Asks, mid, pct, false)
		zi := ratio(zb-za, zb+za)
		res.ZoneImbalances[i] = zi

		weight := 1.0
		if i < len(cfg.ZoneWeights) {
			weight = cfg.ZoneWeights[i]
		}
		if zi > cfg.ZoneImbalanceRatio {
			bull += weight
		} else if zi < -cfg.ZoneImbalanceRatio {
			bear += weight
		}
	}

	// Exponential distance-weighted pressure
	bidPressure := s.pressure(book.Bids, mid)
	askPressure := s.pressure(book.Asks, mid)
	res.BidPressureShare = ratio(bidPressure, bidPressure+askPressure)
	if bidPressure+askPressure > 0 {
		if res.BidPressureShare > cfg.PressureDominance {
			bull += cfg.PressureScore
		} else if res.BidPressureShare < 1-cfg.PressureDominance {
			bear += cfg.PressureScore
		}
	}

	// Walls: bid walls act as support, ask walls as resistance
	res.BidWalls = s.countWalls(book.Bids)
	res.AskWalls = s.countWalls(book.Asks)
	bull += math.Min(cfg.MaxWallScore, float64(res.BidWalls)*cfg.WallScore)
	bear += math.Min(cfg.MaxWallScore, float64(res.AskWalls)*cfg.WallScore)

	// Tight spread with a mild lean
	absDOM := math.Abs(res.DOM)
	if res.SpreadPct < cfg.TightSpreadPct && absDOM >= cfg.MildDOMMin && absDOM <= cfg.DOMThreshold {
		if res.DOM > 0 {
			bull += cfg.CompressionBonus
		} else {
			bear += cfg.CompressionBonus
		}
	}

	res.Bull, res.Bear = bull, bear
	res.Direction, res.Score, res.Confidence = resolveDirection(bull, bear, cfg.Rule)

	putMetric(res.Metrics, "dom", res.DOM)
	putMetric(res.Metrics, "imbalance", res.Imbalance)
	putMetric(res.Metrics, "bid_pressure_share", res.BidPressureShare)
	putMetric(res.Metrics, "bid_walls", float64(res.BidWalls))
	putMetric(res.Metrics, "ask_walls", float64(res.AskWalls))
	putMetric(res.Metrics, "bull", bull)
	putMetric(res.Metrics, "bear", bear)
	for i, zi := range res.ZoneImbalances {
		putMetric(res.Metrics, fmt.Sprintf("zone_%d", i), zi)
	}

	return res
}

func (s *OrderBookScorer) pressure(levels []market.PriceLevel, mid float64) float64 {
	if mid <= 0 {
		return 0
	}
	total := 0.0
	for _, l := range levels {
		distance := math.Abs(l.Price-mid) / mid
		total += l.Qty * math.Exp(-distance*s.config.PressureDecay)
	}
	return total
}

// countWalls counts levels whose quantity exceeds WallMultiplier times the
// average of their neighbours within WallWindow
func (s *OrderBookScorer) countWalls(levels []market.PriceLevel) int {
	w := s.config.WallWindow
	walls := 0
	for i := range levels {
		sum, n := 0.0, 0
		for j := i - w; j <= i+w; j++ {
			if j == i || j < 0 || j >= len(levels) {
				continue
			}
			sum += levels[j].Qty
			n++
		}
		if n == 0 {
			continue
		}
		if avg := sum / float64(n); avg > 0 && levels[i].Qty > avg*s.config.WallMultiplier {
			walls++
		}
	}
	return walls
}
