package patterns

import (
	"confluence-engine/internal/market"
)

// isBullishEngulfing checks for Bullish Engulfing pattern
func (pd *PatternDetector) isBullishEngulfing(c1, c2 market.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}

	// C2 body must completely engulf C1 body
	return c2.Open <= c1.Close && c2.Close >= c1.Open
}

// isBearishEngulfing checks for Bearish Engulfing pattern
func (pd *PatternDetector) isBearishEngulfing(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	return c2.Open >= c1.Close && c2.Close <= c1.Open
}

// isPiercingLine checks for a bullish candle opening below a strong bearish
// candle's close and recovering past its midpoint without engulfing it
func (pd *PatternDetector) isPiercingLine(c1, c2 market.Candle) bool {
	if !c1.IsBearish() || c1.Body() < c1.Range()*0.6 || !c2.IsBullish() {
		return false
	}
	mid := (c1.Open + c1.Close) / 2
	return c2.Open < c1.Close && c2.Close > mid && c2.Close < c1.Open
}

// isDarkCloudCover is the bearish mirror of the piercing line
func (pd *PatternDetector) isDarkCloudCover(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || c1.Body() < c1.Range()*0.6 || !c2.IsBearish() {
		return false
	}
	mid := (c1.Open + c1.Close) / 2
	return c2.Open > c1.Close && c2.Close < mid && c2.Close > c1.Open
}

// isDoji checks for Doji pattern (indecision)
func (pd *PatternDetector) isDoji(c market.Candle) bool {
	r := c.Range()
	if r == 0 {
		return false
	}

	// Doji: body is very small relative to range (< 10%)
	return c.Body()/r < 0.10
}

// isDragonflyDoji checks for Dragonfly Doji (bullish)
func (pd *PatternDetector) isDragonflyDoji(c market.Candle) bool {
	if !pd.isDoji(c) {
		return false
	}
	upper, lower := wicks(c)
	return lower >= c.Range()*0.6 && upper <= c.Range()*0.1
}

// isGravestoneDoji checks for Gravestone Doji (bearish)
func (pd *PatternDetector) isGravestoneDoji(c market.Candle) bool {
	if !pd.isDoji(c) {
		return false
	}
	upper, lower := wicks(c)
	return upper >= c.Range()*0.6 && lower <= c.Range()*0.1
}

// isBullishHarami checks for Bullish Harami pattern
func (pd *PatternDetector) isBullishHarami(c1, c2 market.Candle) bool {
	// C1: Large bearish candle
	if !c1.IsBearish() || c1.Body() < c1.Range()*0.6 {
		return false
	}

	// C2: Small bullish candle inside C1 body
	if !c2.IsBullish() {
		return false
	}
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// isBearishHarami checks for Bearish Harami pattern
func (pd *PatternDetector) isBearishHarami(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || c1.Body() < c1.Range()*0.6 {
		return false
	}
	if !c2.IsBearish() {
		return false
	}
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// longLowerShadow is the hammer/hanging-man silhouette
func longLowerShadow(c market.Candle) bool {
	upper, lower := wicks(c)
	body := c.Body()
	return body > 0 && lower >= body*2 && upper <= body*0.3
}

// longUpperShadow is the shooting-star/inverted-hammer silhouette
func longUpperShadow(c market.Candle) bool {
	upper, lower := wicks(c)
	body := c.Body()
	return body > 0 && upper >= body*2 && lower <= body*0.3
}

// isHammer checks for Hammer pattern (bullish reversal after a down candle)
func (pd *PatternDetector) isHammer(c market.Candle, prev *market.Candle) bool {
	if !longLowerShadow(c) {
		return false
	}
	return prev == nil || prev.IsBearish()
}

// isHangingMan has the hammer's shape but appears after an up candle
func (pd *PatternDetector) isHangingMan(c market.Candle, prev *market.Candle) bool {
	if !longLowerShadow(c) {
		return false
	}
	return prev != nil && prev.IsBullish()
}

// isShootingStar checks for Shooting Star pattern (bearish reversal after an up candle)
func (pd *PatternDetector) isShootingStar(c market.Candle, prev *market.Candle) bool {
	if !longUpperShadow(c) {
		return false
	}
	return prev == nil || prev.IsBullish()
}

// isInvertedHammer has the shooting star's shape but appears after a down candle
func (pd *PatternDetector) isInvertedHammer(c market.Candle, prev *market.Candle) bool {
	if !longUpperShadow(c) {
		return false
	}
	return prev != nil && prev.IsBearish()
}
