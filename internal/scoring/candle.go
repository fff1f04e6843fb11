package scoring

import (
	"math"

	"confluence-engine/internal/indicators"
	"confluence-engine/internal/market"
	"confluence-engine/internal/patterns"
)

// CandleIndicators is the indicator snapshot taken on the last bar
type CandleIndicators struct {
	RSI         float64                    `json:"rsi"`
	MACD        indicators.MACDResult      `json:"macd"`
	Bollinger   indicators.BollingerResult `json:"bollinger"`
	EMAShort    float64                    `json:"ema_short"`
	EMAMid      float64                    `json:"ema_mid"`
	EMALong     float64                    `json:"ema_long"`
	ATR         float64                    `json:"atr"`
	VolumeRatio float64                    `json:"volume_ratio"`
	LastClose   float64                    `json:"last_close"`
}

// CandleScore is one timeframe's candle domain result
type CandleScore struct {
	market.DomainScore
	Timeframe        market.Timeframe           `json:"timeframe"`
	Patterns         []patterns.DetectedPattern `json:"patterns,omitempty"`
	Indicators       CandleIndicators           `json:"indicators"`
	EMATrend         market.Direction           `json:"ema_trend"`
	VolumeMultiplier float64                    `json:"volume_multiplier"`
	VolumeConfirmed  bool                       `json:"volume_confirmed"`
	BBSqueeze        bool                       `json:"bb_squeeze"`
	HighVolatility   bool                       `json:"high_volatility"`
	Bull             float64                    `json:"bull"`
	Bear             float64                    `json:"bear"`
}

// CandleScorer scores one timeframe's candles
type CandleScorer struct {
	config   CandleConfig
	detector *patterns.PatternDetector
	weights  map[patterns.PatternType]float64
}

// NewCandleScorer creates a new candle scorer. The pattern table is copied.
func NewCandleScorer(config CandleConfig) *CandleScorer {
	weights := make(map[patterns.PatternType]float64, len(config.PatternWeights))
	for k, v := range config.PatternWeights {
		weights[k] = v
	}
	return &CandleScorer{
		config:   config,
		detector: patterns.NewPatternDetector(config.MinBodyPct),
		weights:  weights,
	}
}

// Score evaluates candles ordered oldest to newest
func (s *CandleScorer) Score(tf market.Timeframe, candles []market.Candle) CandleScore {
	cfg := s.config
	res := CandleScore{
		DomainScore:      market.NeutralScore(false),
		Timeframe:        tf,
		EMATrend:         market.Neutral,
		VolumeMultiplier: 1,
	}

	if len(candles) < cfg.MinCandles {
		res.Insufficient = true
		return res
	}

	last := candles[len(candles)-1]
	closes := indicators.Closes(candles)
	var bull, bear float64

	// Patterns completing on the last bar
	res.Patterns = s.detector.Detect(candles)
	for _, p := range res.Patterns {
		w := s.weights[p.Type]
		switch p.Direction {
		case market.Long:
			bull += w
		case market.Short:
			bear += w
		default:
			// indecision leans against the preceding move
			switch priorMove(closes) {
			case market.Long:
				bear += w
			case market.Short:
				bull += w
			}
		}
	}

	// RSI extremes
	ind := CandleIndicators{LastClose: last.Close}
	ind.RSI = indicators.RSI(candles, cfg.RSIPeriod)
	switch {
	case ind.RSI <= cfg.RSIExtremeLow:
		bull += 2
	case ind.RSI <= cfg.RSIOversold:
		bull += 1
	case ind.RSI >= cfg.RSIExtremeHigh:
		bear += 2
	case ind.RSI >= cfg.RSIOverbought:
		bear += 1
	}

	// MACD histogram and crossover
	ind.MACD = indicators.MACD(candles, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	if ind.MACD.Valid {
		if ind.MACD.Histogram > 0 {
			bull += cfg.MACDScore
		} else if ind.MACD.Histogram < 0 {
			bear += cfg.MACDScore
		}
		switch ind.MACD.Crossed() {
		case 1:
			bull += cfg.MACDCrossBonus
		case -1:
			bear += cfg.MACDCrossBonus
		}
	}

	// Bollinger breach (mean reversion) and squeeze
	ind.Bollinger = indicators.Bollinger(candles, cfg.BBPeriod, cfg.BBStdDev)
	if ind.Bollinger.Middle > 0 && ind.Bollinger.Upper > ind.Bollinger.Lower {
		if last.Close < ind.Bollinger.Lower {
			bull += cfg.BBBreachScore
		} else if last.Close > ind.Bollinger.Upper {
			bear += cfg.BBBreachScore
		}
	}
	res.BBSqueeze = s.squeeze(candles, ind.Bollinger.Bandwidth)

	// EMA stack
	if len(closes) >= cfg.EMALong {
		ind.EMAShort = indicators.EMA(closes, cfg.EMAShort)
		ind.EMAMid = indicators.EMA(closes, cfg.EMAMid)
		ind.EMALong = indicators.EMA(closes, cfg.EMALong)
		switch {
		case ind.EMAShort > ind.EMAMid && ind.EMAMid > ind.EMALong:
			bull += cfg.EMAStackScore
			res.EMATrend = market.Long
		case ind.EMAShort < ind.EMAMid && ind.EMAMid < ind.EMALong:
			bear += cfg.EMAStackScore
			res.EMATrend = market.Short
		}
	}

	ind.ATR = indicators.ATR(candles, cfg.ATRPeriod)

	// Volume confirmation multiplier
	ind.VolumeRatio = indicators.VolumeRatio(candles, cfg.VolumePeriod)
	if ind.VolumeRatio > 0 {
		res.VolumeMultiplier = math.Max(cfg.VolumeMultMin, math.Min(cfg.VolumeMultMax, ind.VolumeRatio))
	}
	res.VolumeConfirmed = ind.VolumeRatio >= cfg.VolumeConfirm

	if last.Close > 0 {
		res.HighVolatility = last.Range()/last.Close*100 > cfg.HighVolRangePct
	}

	res.Indicators = ind
	res.Bull, res.Bear = bull, bear

	dir, score, confidence := resolveDirection(bull, bear, cfg.Rule)
	res.Direction, res.Confidence = dir, confidence
	res.Score = math.Min(score*res.VolumeMultiplier, cfg.Rule.MaxScore)

	putMetric(res.Metrics, "rsi", ind.RSI)
	putMetric(res.Metrics, "macd_histogram", ind.MACD.Histogram)
	putMetric(res.Metrics, "atr", ind.ATR)
	putMetric(res.Metrics, "volume_ratio", ind.VolumeRatio)
	putMetric(res.Metrics, "bandwidth", ind.Bollinger.Bandwidth)
	putMetric(res.Metrics, "bull", bull)
	putMetric(res.Metrics, "bear", bear)

	return res
}

// squeeze reports bandwidth contracted below BBSqueezeRatio x its recent average
func (s *CandleScorer) squeeze(candles []market.Candle, current float64) bool {
	series := indicators.BandwidthSeries(candles, s.config.BBPeriod, s.config.BBStdDev, s.config.BBPeriod)
	if len(series) == 0 || current <= 0 {
		return false
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	avg := sum / float64(len(series))
	return avg > 0 && current < avg*s.config.BBSqueezeRatio
}

// priorMove classifies the three bars before the last one
func priorMove(closes []float64) market.Direction {
	n := len(closes)
	if n < 5 {
		return market.Neutral
	}
	switch change := closes[n-2] - closes[n-5]; {
	case change > 0:
		return market.Long
	case change < 0:
		return market.Short
	default:
		return market.Neutral
	}
}
