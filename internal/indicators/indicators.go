package indicators

import (
	"math"

	"confluence-engine/internal/market"
)

// Closes extracts close prices
func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA returns the simple moving average of the last period values
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the last value of the exponential moving average
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// EMASeries returns the EMA for every index from period-1 onward.
// The first value is seeded with the SMA of the first period values.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	ema := SMA(values[:period], period)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out = append(out, ema)
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Wilder-smoothed Relative Strength Index
func RSI(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds the latest MACD values plus the previous histogram bar
type MACDResult struct {
	MACD          float64 `json:"macd"`
	Signal        float64 `json:"signal"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"prev_histogram"`
	Valid         bool    `json:"valid"`
}

// Crossed reports whether the histogram changed sign on the last bar.
// It returns +1 for a bullish cross, -1 for a bearish cross, 0 otherwise.
func (m MACDResult) Crossed() int {
	if !m.Valid {
		return 0
	}
	if m.PrevHistogram <= 0 && m.Histogram > 0 {
		return 1
	}
	if m.PrevHistogram >= 0 && m.Histogram < 0 {
		return -1
	}
	return 0
}

// MACD calculates the MACD line, its signal line and the histogram
func MACD(candles []market.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return MACDResult{}
	}
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	closes := Closes(candles)
	fast := EMASeries(closes, fastPeriod)
	slow := EMASeries(closes, slowPeriod)

	// align both series on the slow EMA's first index
	offset := slowPeriod - fastPeriod
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}

	signal := EMASeries(line, signalPeriod)
	if len(signal) < 2 {
		return MACDResult{}
	}

	last := len(line) - 1
	sigLast := len(signal) - 1
	return MACDResult{
		MACD:          line[last],
		Signal:        signal[sigLast],
		Histogram:     line[last] - signal[sigLast],
		PrevHistogram: line[last-1] - signal[sigLast-1],
		Valid:         true,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Band values
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
}

// Bollinger calculates bands over the last period closes
func Bollinger(candles []market.Candle, period int, stdDevMultiplier float64) BollingerResult {
	return bollingerAt(Closes(candles), len(candles), period, stdDevMultiplier)
}

// BandwidthSeries returns the bandwidth for each of the last count bars
func BandwidthSeries(candles []market.Candle, period int, stdDevMultiplier float64, count int) []float64 {
	closes := Closes(candles)
	out := make([]float64, 0, count)
	for end := len(closes) - count + 1; end <= len(closes); end++ {
		if end < period {
			continue
		}
		out = append(out, bollingerAt(closes, end, period, stdDevMultiplier).Bandwidth)
	}
	return out
}

func bollingerAt(closes []float64, end, period int, mult float64) BollingerResult {
	if period <= 0 || end < period || end > len(closes) {
		return BollingerResult{}
	}

	window := closes[end-period : end]
	middle := SMA(window, period)

	variance := 0.0
	for _, c := range window {
		diff := c - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	res := BollingerResult{
		Upper:  middle + stdDev*mult,
		Middle: middle,
		Lower:  middle - stdDev*mult,
	}
	if middle != 0 {
		res.Bandwidth = (res.Upper - res.Lower) / middle
	}
	return res
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// ATR calculates the Wilder-smoothed Average True Range
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trueRange := func(i int) float64 {
		high, low, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}
	return atr
}

// ============================================================================
// VOLUME ANALYSIS
// ============================================================================

// AverageVolume averages volume over the last period candles
func AverageVolume(candles []market.Candle, period int) float64 {
	if period > len(candles) {
		period = len(candles)
	}
	if period <= 0 {
		return 0
	}

	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return sum / float64(period)
}

// VolumeRatio compares the last candle's volume with the average of the
// period candles before it. Returns 0 when there is no usable average.
func VolumeRatio(candles []market.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}

	avg := AverageVolume(candles[:len(candles)-1], period)
	if avg <= 0 {
		return 0
	}
	return candles[len(candles)-1].Volume / avg
}

// AverageRangePct is the mean of (high-low)/close over the candles, in percent
func AverageRangePct(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}

	sum := 0.0
	n := 0
	for _, c := range candles {
		if c.Close <= 0 {
			continue
		}
		sum += c.Range() / c.Close * 100
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
