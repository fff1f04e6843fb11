package levels

import (
	"math"
	"sort"

	"confluence-engine/internal/analysis"
	"confluence-engine/internal/indicators"
	"confluence-engine/internal/market"
)

// LevelType classifies a level relative to the last close
type LevelType string

const (
	Support    LevelType = "support"
	Resistance LevelType = "resistance"
)

// Level is a merged support/resistance zone
type Level struct {
	Price    float64   `json:"price"`
	Type     LevelType `json:"type"`
	Strength float64   `json:"strength"` // 0-10
	Touches  int       `json:"touches"`
	Volume   float64   `json:"volume"`
}

// candidate is an unmerged level source
type candidate struct {
	price   float64
	touches int
	volume  float64
}

func (c candidate) weight() float64 {
	return float64(c.touches) * c.volume
}

// Detector finds support and resistance from swing extrema and volume-profile peaks
type Detector struct {
	config  Config
	swings  *analysis.TrendAnalyzer
	profile *analysis.VolumeAnalyzer
}

// NewDetector creates a new level detector
func NewDetector(config Config) *Detector {
	return &Detector{
		config:  config,
		swings:  analysis.NewTrendAnalyzer(config.SwingLookback),
		profile: analysis.NewVolumeAnalyzer(config.ProfileBuckets),
	}
}

// Detect returns merged levels sorted by price ascending. Windows too short
// to confirm a swing yield no levels.
func (d *Detector) Detect(candles []market.Candle) []Level {
	if len(candles) < d.config.SwingLookback*2+1 {
		return nil
	}

	var cands []candidate
	for _, sp := range d.swings.FindSwingHighs(candles) {
		cands = append(cands, candidate{price: sp.Price, touches: 1, volume: sp.Volume})
	}
	for _, sp := range d.swings.FindSwingLows(candles) {
		cands = append(cands, candidate{price: sp.Price, touches: 1, volume: sp.Volume})
	}
	for _, node := range d.profile.TopNodes(candles, d.config.ProfileTopN) {
		cands = append(cands, candidate{price: node.Mid(), touches: max(1, node.Touches), volume: node.Volume})
	}
	if len(cands) == 0 {
		return nil
	}

	merged := mergeCandidates(cands, d.tolerancePct(candles))

	avgVolume := indicators.AverageVolume(candles, len(candles))
	lastClose := candles[len(candles)-1].Close

	out := make([]Level, 0, len(merged))
	for _, c := range merged {
		lvl := Level{
			Price:    c.price,
			Type:     Resistance,
			Touches:  c.touches,
			Volume:   c.volume,
			Strength: d.strength(c, avgVolume),
		}
		if c.price < lastClose {
			lvl.Type = Support
		}
		out = append(out, lvl)
	}
	return out
}

// tolerancePct derives the merge band from the average candle range
func (d *Detector) tolerancePct(candles []market.Candle) float64 {
	tol := indicators.AverageRangePct(candles)
	return math.Max(d.config.MinTolerancePct, math.Min(d.config.MaxTolerancePct, tol))
}

// strength = min(6, touches*2) + min(4, volume/avg), capped at 10
func (d *Detector) strength(c candidate, avgVolume float64) float64 {
	s := math.Min(d.config.MaxTouchScore, float64(c.touches)*d.config.TouchScore)
	if avgVolume > 0 {
		s += math.Min(d.config.MaxVolumeScore, c.volume/avgVolume)
	}
	return math.Min(d.config.MaxStrength, s)
}

// mergeCandidates walks candidates by price and folds each one into the
// running cluster while it sits within tolPct of the cluster price. Cluster
// price is the touches x volume weighted average of its members.
func mergeCandidates(cands []candidate, tolPct float64) []candidate {
	sort.Slice(cands, func(i, j int) bool { return cands[i].price < cands[j].price })

	var out []candidate
	cur := cands[0]
	for _, c := range cands[1:] {
		if cur.price > 0 && math.Abs(c.price-cur.price)/cur.price*100 <= tolPct {
			cur = fold(cur, c)
			continue
		}
		out = append(out, cur)
		cur = c
	}
	return append(out, cur)
}

func fold(a, b candidate) candidate {
	wa, wb := a.weight(), b.weight()
	price := (a.price + b.price) / 2
	if wa+wb > 0 {
		price = (a.price*wa + b.price*wb) / (wa + wb)
	}
	return candidate{
		price:   price,
		touches: a.touches + b.touches,
		volume:  a.volume + b.volume,
	}
}

// Nearest returns the closest level below price and the closest level above
// it. Either may be nil.
func Nearest(levels []Level, price float64) (support, resistance *Level) {
	for i := range levels {
		lvl := &levels[i]
		switch {
		case lvl.Price < price:
			if support == nil || lvl.Price > support.Price {
				support = lvl
			}
		case lvl.Price > price:
			if resistance == nil || lvl.Price < resistance.Price {
				resistance = lvl
			}
		}
	}
	return support, resistance
}
