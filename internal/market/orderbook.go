package market

import (
	"math"
	"time"
)

// PriceLevel is one rung of an order-book ladder
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook holds bid and ask ladders, best price first on each side
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid, or 0 when there are no bids
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask, or 0 when there are no asks
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Mid returns the mid price, or 0 if either side is empty
func (ob *OrderBook) Mid() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SpreadPct returns the spread as a percentage of mid.
// An empty side yields +Inf.
func (ob *OrderBook) SpreadPct() float64 {
	mid := ob.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return (ob.BestAsk() - ob.BestBid()) / mid * 100
}

// Depth returns the shallower side's level count
func (ob *OrderBook) Depth() int {
	if ob == nil {
		return 0
	}
	if len(ob.Bids) < len(ob.Asks) {
		return len(ob.Bids)
	}
	return len(ob.Asks)
}

// SideVolume sums quantity on one side within pct percent of mid.
// A pct <= 0 sums the whole side.
func SideVolume(levels []PriceLevel, mid, pct float64, bid bool) float64 {
	var total float64
	for _, l := range levels {
		if pct > 0 && mid > 0 {
			if bid && l.Price < mid*(1-pct/100) {
				continue
			}
			if !bid && l.Price > mid*(1+pct/100) {
				continue
			}
		}
		total += l.Qty
	}
	return total
}
