package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"confluence-engine/internal/confluence"
	"confluence-engine/internal/levels"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/market"
	"confluence-engine/internal/scoring"
	"confluence-engine/internal/signal"
)

// Analyzer turns one market snapshot into a Breakdown. It holds no mutable
// state of its own and is safe for concurrent use across symbols.
type Analyzer struct {
	config     Config
	orderBook  *scoring.OrderBookScorer
	tape       *scoring.TapeScorer
	candle     *scoring.CandleScorer
	mtf        *scoring.MTFAggregator
	mtfFrames  []market.Timeframe
	detector   *levels.Detector
	confirmer  *levels.BreakoutConfirmer
	confluence *confluence.Engine
	generator  *signal.Generator
	logger     zerolog.Logger
}

// NewAnalyzer wires every component from settings. weights may be nil for
// the static default domain weights.
func NewAnalyzer(settings Settings, weights confluence.WeightSource, logger zerolog.Logger) *Analyzer {
	frames := make([]market.Timeframe, 0, len(settings.MTF.Weights))
	for _, w := range settings.MTF.Weights {
		frames = append(frames, w.Timeframe)
	}
	return &Analyzer{
		config:     settings.Engine,
		orderBook:  scoring.NewOrderBookScorer(settings.OrderBook),
		tape:       scoring.NewTapeScorer(settings.Tape),
		candle:     scoring.NewCandleScorer(settings.Candle),
		mtf:        scoring.NewMTFAggregator(settings.MTF),
		mtfFrames:  frames,
		detector:   levels.NewDetector(settings.Levels),
		confirmer:  levels.NewBreakoutConfirmer(settings.Breakout),
		confluence: confluence.NewEngine(settings.Confluence, weights),
		generator:  signal.NewGenerator(settings.Signal),
		logger:     logger,
	}
}

// Timeframes returns every timeframe the analyzer wants candles for
func (a *Analyzer) Timeframes() []market.Timeframe {
	tfs := append([]market.Timeframe(nil), a.mtfFrames...)
	for _, tf := range tfs {
		if tf == a.config.PrimaryTimeframe {
			return tfs
		}
	}
	return append(tfs, a.config.PrimaryTimeframe)
}

// Config returns the analyzer thresholds
func (a *Analyzer) Config() Config { return a.config }

// Analyze scores snap and decides. Missing or thin data never fails the call;
// it yields an insufficient_data forecast that still carries what was scored.
func (a *Analyzer) Analyze(ctx context.Context, snap market.Snapshot) *Breakdown {
	log := logging.FromContextOr(ctx, a.logger).With().
		Str("component", "analyzer").
		Str("symbol", snap.Symbol).
		Logger()

	primaryTF := a.config.PrimaryTimeframe
	primary := snap.Candles[primaryTF]

	bd := &Breakdown{
		Symbol:     snap.Symbol,
		Timeframe:  primaryTF,
		AnalyzedAt: snap.FetchedAt,
		OrderBook:  a.orderBook.Score(snap.OrderBook),
		Tape:       a.tape.Score(snap.Trades),
		Candles:    make(map[market.Timeframe]scoring.CandleScore),
	}
	if bd.AnalyzedAt.IsZero() {
		bd.AnalyzedAt = time.Now()
	}

	for _, tf := range a.Timeframes() {
		if candles, ok := snap.Candles[tf]; ok {
			bd.Candles[tf] = a.candle.Score(tf, candles)
		}
	}
	bd.MTF = a.mtf.Aggregate(bd.Candles, snap.Candles)
	bd.Price = currentPrice(snap.OrderBook, primary)

	if shortfalls := a.shortfalls(snap, primary); len(shortfalls) > 0 {
		bd.Forecast = Forecast{
			Status:    StatusInsufficient,
			Direction: market.Neutral,
			Reason:    "insufficient data: " + strings.Join(shortfalls, "; "),
		}
		log.Debug().Strs("shortfalls", shortfalls).Msg("Insufficient data")
		return bd
	}

	primaryScore := bd.Candles[primaryTF]
	bd.Levels = a.detector.Detect(primary)
	bd.Breakouts = a.confirmer.CheckAll(bd.Levels, levels.BreakoutInput{
		Candles:   primary,
		Price:     bd.Price,
		BidVolume: market.SideVolume(snap.OrderBook.Bids, bd.Price, a.config.BookBandPct, true),
		AskVolume: market.SideVolume(snap.OrderBook.Asks, bd.Price, a.config.BookBandPct, false),
		TapeDelta: bd.Tape.Delta,
	})

	lean := domainLean(bd.OrderBook.Direction, bd.Tape.Direction, bd.MTF.Direction)
	bd.Aux = a.auxiliary(bd, primary, primaryScore, lean)

	result := a.confluence.Evaluate(confluence.Input{
		OrderBook: bd.OrderBook.DomainScore,
		Tape:      bd.Tape.DomainScore,
		Candle:    bd.MTF.DomainScore,
		Aux:       bd.Aux,
	})
	bd.Confluence = &result

	if !result.HasSignal() {
		bd.Forecast = Forecast{Status: StatusNoSignal, Direction: market.Neutral, Reason: result.Reason}
		return bd
	}

	opposing := 0.0
	support, resistance := levels.Nearest(bd.Levels, bd.Price)
	if result.Direction == market.Long && resistance != nil {
		opposing = resistance.Price
	} else if result.Direction == market.Short && support != nil {
		opposing = support.Price
	}

	triggers := append([]string(nil), result.Reasoning...)
	for _, b := range bd.Breakouts {
		if b.Direction == result.Direction {
			triggers = append(triggers, fmt.Sprintf("breakout %.4f (%.2f)", b.Level.Price, b.Confidence))
		}
	}

	sig, err := a.generator.Generate(signal.Request{
		Symbol:        snap.Symbol,
		Direction:     result.Direction,
		Entry:         bd.Price,
		ATR:           primaryScore.Indicators.ATR,
		Mode:          a.config.Mode,
		Timeframe:     primaryTF,
		Confidence:    result.Confidence,
		AutoTradable:  result.AutoTradable,
		Triggers:      triggers,
		OpposingLevel: opposing,
		RSI:           primaryScore.Indicators.RSI,
		RecentCloses:  lastCloses(primary, a.config.RecentCloses),
		FalseBreakout: bd.Aux.FalseBreakout,
		Time:          bd.AnalyzedAt,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Signal generation failed")
		bd.Forecast = Forecast{Status: StatusNoSignal, Direction: market.Neutral, Reason: err.Error()}
		return bd
	}

	bd.Signal = sig
	status := StatusSignal
	if result.Fallback {
		status = StatusFallback
	}
	bd.Forecast = Forecast{
		Status:     status,
		Direction:  sig.Direction,
		Confidence: sig.Confidence,
		Reason:     result.Reason,
	}

	sigLog := logging.SignalContext(log, snap.Symbol, string(sig.Direction), sig.Confidence)
	sigLog.Info().
		Str("status", string(status)).
		Float64("entry", sig.EntryPrice).
		Float64("stop_loss", sig.StopLoss).
		Str("grade", result.Grade).
		Msg("Signal generated")
	return bd
}

// shortfalls lists each missing input, empty when analysis can proceed
func (a *Analyzer) shortfalls(snap market.Snapshot, primary []market.Candle) []string {
	var out []string
	book := snap.OrderBook
	switch {
	case book == nil:
		out = append(out, "order book unavailable")
	case len(book.Bids) < a.config.MinBookLevels || len(book.Asks) < a.config.MinBookLevels:
		out = append(out, fmt.Sprintf("order book %d bids / %d asks, need %d per side",
			len(book.Bids), len(book.Asks), a.config.MinBookLevels))
	}
	if n := len(snap.Trades); n < a.config.MinTrades {
		out = append(out, fmt.Sprintf("%d trades, need %d", n, a.config.MinTrades))
	}
	if n := len(primary); n < a.config.MinCandles {
		out = append(out, fmt.Sprintf("%d %s candles, need %d", n, a.config.PrimaryTimeframe, a.config.MinCandles))
	}
	return out
}

// auxiliary assembles the non-domain confluence inputs
func (a *Analyzer) auxiliary(bd *Breakdown, primary []market.Candle, ps scoring.CandleScore, lean market.Direction) confluence.Auxiliary {
	aux := confluence.Auxiliary{
		SpreadPct:       bd.OrderBook.SpreadPct,
		RecentDelta:     bd.Tape.RecentDelta,
		TapeDelta:       bd.Tape.Delta,
		DOM:             bd.OrderBook.DOM,
		Divergence:      bd.Tape.Divergence,
		HighVolatility:  ps.HighVolatility,
		VolumeConfirmed: ps.VolumeConfirmed,
		BBSqueeze:       ps.BBSqueeze,
		CandleDirection: ps.Direction,
		MTFEvaluated:    bd.MTF.Evaluated,
		HTFTrend:        bd.MTF.HTFTrend,
		EMATrend:        ps.EMATrend,
		StructureTrend:  a.mtf.StructureTrend(primary),
	}
	for _, r := range bd.MTF.Readings {
		if !r.Available {
			continue
		}
		switch r.Direction {
		case market.Long:
			aux.MTFLong++
		case market.Short:
			aux.MTFShort++
		}
	}

	if lean.IsDirectional() {
		aux.RiskReward = a.estimateRiskReward(bd, ps.Indicators.ATR, lean)
		aux.FalseBreakout = a.failedBreakout(bd.Levels, primary, lean)
	}
	return aux
}

// estimateRiskReward measures room to the nearest opposing level against the
// stop the generator would use. 0 means no level in the way.
func (a *Analyzer) estimateRiskReward(bd *Breakdown, atr float64, dir market.Direction) float64 {
	mc, ok := a.generator.ModeConfig(a.config.Mode)
	if !ok || bd.Price <= 0 {
		return 0
	}
	risk := a.generator.StopDistance(bd.Price, atr, mc)
	if risk <= 0 {
		return 0
	}

	support, resistance := levels.Nearest(bd.Levels, bd.Price)
	var room float64
	switch {
	case dir == market.Long && resistance != nil:
		room = resistance.Price - bd.Price
	case dir == market.Short && support != nil:
		room = bd.Price - support.Price
	default:
		return 0
	}
	return room / risk
}

// failedBreakout flags a last bar that pierced a level in dir and closed back
// on the near side
func (a *Analyzer) failedBreakout(lvls []levels.Level, candles []market.Candle, dir market.Direction) bool {
	if len(candles) == 0 {
		return false
	}
	last := candles[len(candles)-1]
	margin := a.config.WickMarginPct / 100

	for _, l := range lvls {
		switch dir {
		case market.Long:
			if last.High > l.Price*(1+margin) && last.Close < l.Price {
				return true
			}
		case market.Short:
			if last.Low < l.Price*(1-margin) && last.Close > l.Price {
				return true
			}
		}
	}
	return false
}

// domainLean is the direction at least two domains share, else NEUTRAL
func domainLean(dirs ...market.Direction) market.Direction {
	long, short := 0, 0
	for _, d := range dirs {
		switch d {
		case market.Long:
			long++
		case market.Short:
			short++
		}
	}
	switch {
	case long >= 2:
		return market.Long
	case short >= 2:
		return market.Short
	}
	return market.Neutral
}

func currentPrice(book *market.OrderBook, candles []market.Candle) float64 {
	if mid := book.Mid(); mid > 0 {
		return mid
	}
	if len(candles) > 0 {
		return candles[len(candles)-1].Close
	}
	return 0
}

func lastCloses(candles []market.Candle, n int) []float64 {
	if len(candles) < n {
		n = len(candles)
	}
	out := make([]float64, 0, n)
	for _, c := range candles[len(candles)-n:] {
		out = append(out, c.Close)
	}
	return out
}
