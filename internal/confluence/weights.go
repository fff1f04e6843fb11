package confluence

import (
	"math"
	"sync"

	"confluence-engine/internal/market"
)

// WeightSource supplies the current domain weights
type WeightSource interface {
	Weights() DomainWeights
}

// OnlineConfig bounds the online weight updates
type OnlineConfig struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" validate:"gte=0,lt=1"`
	MinWeight    float64 `json:"min_weight" yaml:"min_weight" validate:"gte=0"`
	MaxWeight    float64 `json:"max_weight" yaml:"max_weight" validate:"gtefield=MinWeight,lte=1"`
}

// DefaultOnlineConfig returns default online learning bounds
func DefaultOnlineConfig() OnlineConfig {
	return OnlineConfig{
		LearningRate: 0.02,
		MinWeight:    0.10,
		MaxWeight:    0.60,
	}
}

// TradeFeedback pairs what each domain called with what the market did
type TradeFeedback struct {
	Realized  market.Direction `json:"realized"`
	OrderBook market.Direction `json:"order_book"`
	Tape      market.Direction `json:"tape"`
	Candle    market.Direction `json:"candle"`
}

// OnlineWeights nudges domain weights toward the domains that called
// realised outcomes correctly. Updates are serialised.
type OnlineWeights struct {
	mu      sync.RWMutex
	weights DomainWeights
	config  OnlineConfig
	updates int
}

// NewOnlineWeights creates online weights seeded with initial
func NewOnlineWeights(initial DomainWeights, config OnlineConfig) *OnlineWeights {
	ow := &OnlineWeights{config: config}
	ow.weights = ow.bound(initial)
	return ow
}

// Weights implements WeightSource
func (ow *OnlineWeights) Weights() DomainWeights {
	return ow.Snapshot()
}

// Snapshot returns a copy of the current weights
func (ow *OnlineWeights) Snapshot() DomainWeights {
	ow.mu.RLock()
	defer ow.mu.RUnlock()
	return ow.weights
}

// Updates returns how many feedback updates have been applied
func (ow *OnlineWeights) Updates() int {
	ow.mu.RLock()
	defer ow.mu.RUnlock()
	return ow.updates
}

// Restore replaces the weights, e.g. from persisted state
func (ow *OnlineWeights) Restore(w DomainWeights, updates int) {
	ow.mu.Lock()
	defer ow.mu.Unlock()
	ow.weights = ow.bound(w)
	ow.updates = updates
}

// Update applies one feedback step and returns the new weights.
// A NEUTRAL realised direction carries no information and is ignored.
func (ow *OnlineWeights) Update(fb TradeFeedback) DomainWeights {
	ow.mu.Lock()
	defer ow.mu.Unlock()

	if !fb.Realized.IsDirectional() {
		return ow.weights
	}

	lr := ow.config.LearningRate
	w := ow.weights
	w.OrderBook += lr * vote(fb.OrderBook, fb.Realized)
	w.Tape += lr * vote(fb.Tape, fb.Realized)
	w.Candle += lr * vote(fb.Candle, fb.Realized)

	ow.weights = ow.bound(w)
	ow.updates++
	return ow.weights
}

// vote is +1 for a correct call, -1 for a wrong one and 0 for abstaining
func vote(called, realized market.Direction) float64 {
	switch called {
	case realized:
		return 1
	case realized.Opposite():
		return -1
	default:
		return 0
	}
}

// bound clamps each weight and renormalises to sum 1. Clamping after a
// renormalisation can move the sum again, so alternate until both hold.
func (ow *OnlineWeights) bound(w DomainWeights) DomainWeights {
	lo, hi := ow.config.MinWeight, ow.config.MaxWeight
	for i := 0; i < 16; i++ {
		w.OrderBook = clamp(w.OrderBook, lo, hi)
		w.Tape = clamp(w.Tape, lo, hi)
		w.Candle = clamp(w.Candle, lo, hi)

		sum := w.Sum()
		if sum <= 0 {
			return DefaultDomainWeights()
		}
		if math.Abs(sum-1) < 1e-12 {
			break
		}
		w.OrderBook /= sum
		w.Tape /= sum
		w.Candle /= sum
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
