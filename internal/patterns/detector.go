package patterns

import (
	"time"

	"confluence-engine/internal/market"
)

// PatternType represents different candlestick patterns
type PatternType string

const (
	// Three-candle patterns
	MorningStar        PatternType = "morning_star"
	EveningStar        PatternType = "evening_star"
	ThreeWhiteSoldiers PatternType = "three_white_soldiers"
	ThreeBlackCrows    PatternType = "three_black_crows"

	// Two-candle patterns
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	BullishHarami    PatternType = "bullish_harami"
	BearishHarami    PatternType = "bearish_harami"
	PiercingLine     PatternType = "piercing_line"
	DarkCloudCover   PatternType = "dark_cloud_cover"

	// Single-candle patterns
	Hammer         PatternType = "hammer"
	InvertedHammer PatternType = "inverted_hammer"
	ShootingStar   PatternType = "shooting_star"
	HangingMan     PatternType = "hanging_man"
	Doji           PatternType = "doji"
	DragonflyDoji  PatternType = "dragonfly_doji"
	GravestoneDoji PatternType = "gravestone_doji"
)

// DetectedPattern represents a detected candlestick pattern
type DetectedPattern struct {
	Type        PatternType      `json:"type"`
	DetectedAt  time.Time        `json:"detected_at"`
	CandleIndex int              `json:"candle_index"`
	Confidence  float64          `json:"confidence"` // 0.0 to 1.0
	Direction   market.Direction `json:"direction"`
}

// PatternDetector detects candlestick patterns
type PatternDetector struct {
	minBodyPct float64 // Minimum body size for "strong" candles (% of price)
}

// NewPatternDetector creates a new pattern detector
func NewPatternDetector(minBodyPct float64) *PatternDetector {
	if minBodyPct <= 0 {
		minBodyPct = 0.5 // Default 0.5%
	}
	return &PatternDetector{
		minBodyPct: minBodyPct,
	}
}

// Detect returns the patterns that complete on the final candle
func (pd *PatternDetector) Detect(candles []market.Candle) []DetectedPattern {
	if len(candles) == 0 {
		return nil
	}
	return pd.DetectAt(candles, len(candles)-1)
}

// Scan returns every pattern found anywhere in the window
func (pd *PatternDetector) Scan(candles []market.Candle) []DetectedPattern {
	var out []DetectedPattern
	for i := range candles {
		out = append(out, pd.DetectAt(candles, i)...)
	}
	return out
}

// DetectAt returns the patterns that complete on candle i
func (pd *PatternDetector) DetectAt(candles []market.Candle, i int) []DetectedPattern {
	if i < 0 || i >= len(candles) {
		return nil
	}

	var found []DetectedPattern
	add := func(t PatternType, dir market.Direction, confidence float64) {
		found = append(found, DetectedPattern{
			Type:        t,
			DetectedAt:  candles[i].CloseTime,
			CandleIndex: i,
			Confidence:  confidence,
			Direction:   dir,
		})
	}

	if i >= 2 {
		c1, c2, c3 := candles[i-2], candles[i-1], candles[i]
		if pd.isMorningStar(c1, c2, c3) {
			add(MorningStar, market.Long, pd.starConfidence(c1, c3))
		}
		if pd.isEveningStar(c1, c2, c3) {
			add(EveningStar, market.Short, pd.starConfidence(c1, c3))
		}
		if pd.isThreeWhiteSoldiers(c1, c2, c3) {
			add(ThreeWhiteSoldiers, market.Long, 0.72)
		}
		if pd.isThreeBlackCrows(c1, c2, c3) {
			add(ThreeBlackCrows, market.Short, 0.72)
		}
	}

	var prev *market.Candle
	if i >= 1 {
		c1, c2 := candles[i-1], candles[i]
		prev = &candles[i-1]
		if pd.isBullishEngulfing(c1, c2) {
			add(BullishEngulfing, market.Long, 0.75)
		}
		if pd.isBearishEngulfing(c1, c2) {
			add(BearishEngulfing, market.Short, 0.75)
		}
		if pd.isBullishHarami(c1, c2) {
			add(BullishHarami, market.Long, 0.68)
		}
		if pd.isBearishHarami(c1, c2) {
			add(BearishHarami, market.Short, 0.68)
		}
		if pd.isPiercingLine(c1, c2) {
			add(PiercingLine, market.Long, 0.66)
		}
		if pd.isDarkCloudCover(c1, c2) {
			add(DarkCloudCover, market.Short, 0.66)
		}
	}

	c := candles[i]
	switch {
	case pd.isDragonflyDoji(c):
		add(DragonflyDoji, market.Long, 0.62)
	case pd.isGravestoneDoji(c):
		add(GravestoneDoji, market.Short, 0.62)
	case pd.isDoji(c):
		add(Doji, market.Neutral, 0.50)
	default:
		if pd.isHammer(c, prev) {
			add(Hammer, market.Long, 0.65)
		}
		if pd.isHangingMan(c, prev) {
			add(HangingMan, market.Short, 0.60)
		}
		if pd.isShootingStar(c, prev) {
			add(ShootingStar, market.Short, 0.65)
		}
		if pd.isInvertedHammer(c, prev) {
			add(InvertedHammer, market.Long, 0.60)
		}
	}

	return found
}

// isMorningStar checks for Morning Star pattern (bullish reversal)
func (pd *PatternDetector) isMorningStar(c1, c2, c3 market.Candle) bool {
	// Candle 1: Long bearish candle
	if !c1.IsBearish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// Candle 2: Small body (indecision)
	if c2.Body() > c1.Body()*0.4 {
		return false
	}

	// Candle 3: Long bullish candle
	if !c3.IsBullish() || c3.Body() < c3.Range()*0.6 {
		return false
	}

	// C3 should close above midpoint of C1
	return c3.Close >= (c1.Open+c1.Close)/2
}

// isEveningStar checks for Evening Star pattern (bearish reversal)
func (pd *PatternDetector) isEveningStar(c1, c2, c3 market.Candle) bool {
	if !c1.IsBullish() || c1.Body() < c1.Range()*0.6 {
		return false
	}
	if c2.Body() > c1.Body()*0.4 {
		return false
	}
	if !c3.IsBearish() || c3.Body() < c3.Range()*0.6 {
		return false
	}
	return c3.Close <= (c1.Open+c1.Close)/2
}

// isThreeWhiteSoldiers checks for three strong bullish candles each closing higher
// and opening inside the previous body
func (pd *PatternDetector) isThreeWhiteSoldiers(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if !c.IsBullish() || !pd.isStrong(c) {
			return false
		}
	}
	if c2.Close <= c1.Close || c3.Close <= c2.Close {
		return false
	}
	return c2.Open >= c1.Open && c2.Open <= c1.Close &&
		c3.Open >= c2.Open && c3.Open <= c2.Close
}

// isThreeBlackCrows is the bearish mirror of three white soldiers
func (pd *PatternDetector) isThreeBlackCrows(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if !c.IsBearish() || !pd.isStrong(c) {
			return false
		}
	}
	if c2.Close >= c1.Close || c3.Close >= c2.Close {
		return false
	}
	return c2.Open <= c1.Open && c2.Open >= c1.Close &&
		c3.Open <= c2.Open && c3.Open >= c2.Close
}

// isStrong reports a body of at least minBodyPct of price that dominates the range
func (pd *PatternDetector) isStrong(c market.Candle) bool {
	if c.Close <= 0 || c.Range() == 0 {
		return false
	}
	return c.Body()/c.Close*100 >= pd.minBodyPct && c.Body() >= c.Range()*0.5
}

// starConfidence scores star patterns higher when the confirming candle is larger
func (pd *PatternDetector) starConfidence(c1, c3 market.Candle) float64 {
	confidence := 0.7
	if c3.Body() > c1.Body()*1.2 {
		confidence += 0.1
	}
	return confidence
}

// wicks returns upper and lower shadow lengths
func wicks(c market.Candle) (upper, lower float64) {
	upper = c.High - max(c.Open, c.Close)
	lower = min(c.Open, c.Close) - c.Low
	return upper, lower
}
