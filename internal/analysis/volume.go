package analysis

import (
	"sort"

	"confluence-engine/internal/market"
)

// VolumeNode is one price bucket of a volume profile
type VolumeNode struct {
	PriceLow   float64 `json:"price_low"`
	PriceHigh  float64 `json:"price_high"`
	Volume     float64 `json:"volume"`
	Percentage float64 `json:"percentage"`
	Touches    int     `json:"touches"` // candles whose range crosses the bucket midpoint
}

// Mid returns the bucket midpoint
func (n VolumeNode) Mid() float64 {
	return (n.PriceLow + n.PriceHigh) / 2
}

// VolumeAnalyzer builds volume-at-price profiles
type VolumeAnalyzer struct {
	buckets int
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer(buckets int) *VolumeAnalyzer {
	if buckets <= 0 {
		buckets = 24
	}
	return &VolumeAnalyzer{buckets: buckets}
}

// Profile distributes each candle's volume into the bucket of its typical price
func (va *VolumeAnalyzer) Profile(candles []market.Candle) []VolumeNode {
	if len(candles) == 0 {
		return nil
	}

	minPrice := candles[0].Low
	maxPrice := candles[0].High
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}

	if maxPrice <= minPrice {
		return nil
	}

	bucketSize := (maxPrice - minPrice) / float64(va.buckets)
	nodes := make([]VolumeNode, va.buckets)
	totalVolume := 0.0

	for i := range nodes {
		nodes[i].PriceLow = minPrice + float64(i)*bucketSize
		nodes[i].PriceHigh = minPrice + float64(i+1)*bucketSize
	}

	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		idx := int((typical - minPrice) / bucketSize)
		if idx >= va.buckets {
			idx = va.buckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		nodes[idx].Volume += c.Volume
		totalVolume += c.Volume
	}

	for i := range nodes {
		if totalVolume > 0 {
			nodes[i].Percentage = nodes[i].Volume / totalVolume * 100
		}
		mid := nodes[i].Mid()
		for _, c := range candles {
			if c.Low <= mid && c.High >= mid {
				nodes[i].Touches++
			}
		}
	}

	return nodes
}

// TopNodes returns the n highest-volume buckets, highest first.
// Empty buckets are never returned.
func (va *VolumeAnalyzer) TopNodes(candles []market.Candle, n int) []VolumeNode {
	profile := va.Profile(candles)
	sort.SliceStable(profile, func(i, j int) bool {
		return profile[i].Volume > profile[j].Volume
	})

	out := make([]VolumeNode, 0, n)
	for _, node := range profile {
		if len(out) == n || node.Volume <= 0 {
			break
		}
		out = append(out, node)
	}
	return out
}
