package market

import (
	"time"
)

// Direction is the directional bias produced by scorers and the confluence engine
type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// Opposite returns the opposing direction; NEUTRAL maps to itself
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Neutral
	}
}

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// IsDirectional reports whether d is LONG or SHORT
func (d Direction) IsDirectional() bool {
	return d == Long || d == Short
}

// Timeframe is a candle interval
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// AllTimeframes lists the supported timeframes from highest to lowest
var AllTimeframes = []Timeframe{TF1d, TF4h, TF1h, TF15m, TF5m, TF1m}

// Duration returns the length of one candle on this timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is one of the supported timeframes
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// Trade is one executed trade from the tape
type Trade struct {
	Price float64   `json:"price"`
	Qty   float64   `json:"qty"`
	Time  time.Time `json:"time"`
	IsBuy bool      `json:"is_buy"`
}

// Notional returns price * qty
func (t Trade) Notional() float64 {
	return t.Price * t.Qty
}

// Candle is one OHLCV bar
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

func (c Candle) Range() float64 { return c.High - c.Low }

func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) IsBullish() bool { return c.Close > c.Open }

func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Snapshot bundles everything fetched for one symbol in one analysis cycle.
// A nil OrderBook or missing timeframe means the fetch failed or returned nothing.
type Snapshot struct {
	Symbol    string                 `json:"symbol"`
	OrderBook *OrderBook             `json:"order_book,omitempty"`
	Trades    []Trade                `json:"trades,omitempty"`
	Candles   map[Timeframe][]Candle `json:"candles,omitempty"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// DomainScore is the common output of every scorer
type DomainScore struct {
	Direction    Direction          `json:"direction"`
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	Insufficient bool               `json:"insufficient,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// NeutralScore returns a zero score, flagged insufficient when requested
func NeutralScore(insufficient bool) DomainScore {
	return DomainScore{
		Direction:    Neutral,
		Insufficient: insufficient,
		Metrics:      map[string]float64{},
	}
}
