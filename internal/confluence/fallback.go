package confluence

import (
	"fmt"

	"confluence-engine/internal/market"
)

// fallback runs a majority vote when confluence fails. Each domain casts one
// vote and the two auxiliary trend readings half a vote each. The result is
// low confidence and never auto-tradable.
func (e *Engine) fallback(in Input, why string) Result {
	fp := e.policy.Fallback

	var long, short float64
	cast := func(d market.Direction, weight float64) {
		switch d {
		case market.Long:
			long += weight
		case market.Short:
			short += weight
		}
	}
	cast(in.OrderBook.Direction, fp.DomainVote)
	cast(in.Tape.Direction, fp.DomainVote)
	cast(in.Candle.Direction, fp.DomainVote)
	cast(in.Aux.EMATrend, fp.AuxVote)
	cast(in.Aux.StructureTrend, fp.AuxVote)

	_, agreeing := majority(in)
	res := Result{
		Direction: market.Neutral,
		Agreeing:  agreeing,
		Fallback:  true,
	}

	winner, loser, dir := long, short, market.Long
	if short > long {
		winner, loser, dir = short, long, market.Short
	}
	total := long + short

	if winner <= loser || winner < fp.MinVotes || total <= 0 {
		res.Grade = scoreToGrade(0)
		res.Reason = fmt.Sprintf("%s; fallback vote inconclusive (%.1f long / %.1f short)", why, long, short)
		return res
	}

	conf := fp.MinConfidence + fp.MarginSpan*(winner-loser)/total
	res.Direction = dir
	res.Confidence = clamp(conf, fp.MinConfidence, fp.MaxConfidence)
	res.Grade = scoreToGrade(res.Confidence)
	res.Reason = fmt.Sprintf("%s; fallback vote %s %.1f to %.1f", why, dir, winner, loser)
	res.Steps = []Step{{Stage: "fallback", Confidence: res.Confidence}}
	return res
}
