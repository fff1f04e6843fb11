package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"confluence-engine/internal/circuit"
	"confluence-engine/internal/confluence"
	"confluence-engine/internal/risk"
)

// ErrNoState is returned by a StateStore that has nothing saved yet
var ErrNoState = errors.New("no persisted gate state")

// Snapshot is everything the Gatekeeper needs to survive a restart
type Snapshot struct {
	Filter        circuit.TradingState     `json:"filter"`
	DayKey        string                   `json:"day_key"`
	DailyTrades   int                      `json:"daily_trades"`
	Weights       confluence.DomainWeights `json:"weights"`
	WeightUpdates int                      `json:"weight_updates"`
	Stats         risk.TradeStats          `json:"stats"`
	SavedAt       time.Time                `json:"saved_at"`
}

// StateStore persists gate snapshots
type StateStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// MemoryStore keeps the latest snapshot in process
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snap
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, ErrNoState
	}
	cp := *m.snap
	return &cp, nil
}
