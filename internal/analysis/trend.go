package analysis

import (
	"confluence-engine/internal/market"
)

// MarketStructure summarises swing sequencing over a candle window
type MarketStructure struct {
	Trend       market.Direction `json:"trend"`
	HigherHighs int              `json:"higher_highs"`
	HigherLows  int              `json:"higher_lows"`
	LowerHighs  int              `json:"lower_highs"`
	LowerLows   int              `json:"lower_lows"`
	SwingHighs  []SwingPoint     `json:"swing_highs"`
	SwingLows   []SwingPoint     `json:"swing_lows"`
}

// SwingPoint represents a local extreme
type SwingPoint struct {
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	CandleIndex int     `json:"candle_index"`
	Type        string  `json:"type"` // "high" or "low"
}

// TrendAnalyzer analyzes market structure from swing points
type TrendAnalyzer struct {
	swingLookback int // Candles on each side that must not be more extreme
}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer(swingLookback int) *TrendAnalyzer {
	if swingLookback <= 0 {
		swingLookback = 5 // Default 5-candle swing
	}
	return &TrendAnalyzer{
		swingLookback: swingLookback,
	}
}

// AnalyzeStructure classifies the window by its last two swing highs and lows.
// Higher-high plus higher-low is LONG, lower-high plus lower-low is SHORT.
func (ta *TrendAnalyzer) AnalyzeStructure(candles []market.Candle) MarketStructure {
	structure := MarketStructure{Trend: market.Neutral}
	if len(candles) < ta.swingLookback*2+1 {
		return structure
	}

	structure.SwingHighs = ta.FindSwingHighs(candles)
	structure.SwingLows = ta.FindSwingLows(candles)

	structure.HigherHighs = countRising(structure.SwingHighs)
	structure.LowerHighs = countFalling(structure.SwingHighs)
	structure.HigherLows = countRising(structure.SwingLows)
	structure.LowerLows = countFalling(structure.SwingLows)

	structure.Trend = ta.DetermineTrend(structure)
	return structure
}

// DetermineTrend looks only at the most recent swing of each kind
func (ta *TrendAnalyzer) DetermineTrend(structure MarketStructure) market.Direction {
	highs, lows := structure.SwingHighs, structure.SwingLows
	if len(highs) < 2 || len(lows) < 2 {
		return market.Neutral
	}

	lastHigh, prevHigh := highs[len(highs)-1].Price, highs[len(highs)-2].Price
	lastLow, prevLow := lows[len(lows)-1].Price, lows[len(lows)-2].Price

	switch {
	case lastHigh > prevHigh && lastLow > prevLow:
		return market.Long
	case lastHigh < prevHigh && lastLow < prevLow:
		return market.Short
	default:
		return market.Neutral
	}
}

// FindSwingHighs marks a bar as a swing high only if no neighbour within the
// lookback window has a higher high
func (ta *TrendAnalyzer) FindSwingHighs(candles []market.Candle) []SwingPoint {
	var swingHighs []SwingPoint

	for i := ta.swingLookback; i < len(candles)-ta.swingLookback; i++ {
		isSwingHigh := true
		currentHigh := candles[i].High

		for j := i - ta.swingLookback; j <= i+ta.swingLookback; j++ {
			if j != i && candles[j].High > currentHigh {
				isSwingHigh = false
				break
			}
		}

		if isSwingHigh {
			swingHighs = append(swingHighs, SwingPoint{
				Price:       currentHigh,
				Volume:      candles[i].Volume,
				CandleIndex: i,
				Type:        "high",
			})
		}
	}

	return swingHighs
}

// FindSwingLows marks a bar as a swing low only if no neighbour within the
// lookback window has a lower low
func (ta *TrendAnalyzer) FindSwingLows(candles []market.Candle) []SwingPoint {
	var swingLows []SwingPoint

	for i := ta.swingLookback; i < len(candles)-ta.swingLookback; i++ {
		isSwingLow := true
		currentLow := candles[i].Low

		for j := i - ta.swingLookback; j <= i+ta.swingLookback; j++ {
			if j != i && candles[j].Low < currentLow {
				isSwingLow = false
				break
			}
		}

		if isSwingLow {
			swingLows = append(swingLows, SwingPoint{
				Price:       currentLow,
				Volume:      candles[i].Volume,
				CandleIndex: i,
				Type:        "low",
			})
		}
	}

	return swingLows
}

func countRising(points []SwingPoint) int {
	count := 0
	for i := 1; i < len(points); i++ {
		if points[i].Price > points[i-1].Price {
			count++
		}
	}
	return count
}

func countFalling(points []SwingPoint) int {
	count := 0
	for i := 1; i < len(points); i++ {
		if points[i].Price < points[i-1].Price {
			count++
		}
	}
	return count
}
