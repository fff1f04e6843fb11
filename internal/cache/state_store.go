package cache

import (
	"context"
	"fmt"
	"time"

	"confluence-engine/internal/gate"
)

// GateStateKey holds the Gatekeeper snapshot
const GateStateKey = "gate:state"

// stateTTL outlives any UTC day so a restart always finds today's counters
const stateTTL = 72 * time.Hour

// StateStore persists gate snapshots in Redis as JSON
type StateStore struct {
	store Store
	key   string
}

// NewStateStore stores snapshots under GateStateKey
func NewStateStore(store Store) *StateStore {
	return &StateStore{store: store, key: GateStateKey}
}

// Save implements gate.StateStore
func (s *StateStore) Save(ctx context.Context, snap gate.Snapshot) error {
	if err := s.store.Set(ctx, s.key, snap, stateTTL); err != nil {
		return fmt.Errorf("save gate state: %w", err)
	}
	return nil
}

// Load implements gate.StateStore. A missing key maps to gate.ErrNoState.
func (s *StateStore) Load(ctx context.Context) (*gate.Snapshot, error) {
	var snap gate.Snapshot
	if err := GetJSON(ctx, s.store, s.key, &snap); err != nil {
		if IsMiss(err) {
			return nil, gate.ErrNoState
		}
		return nil, fmt.Errorf("load gate state: %w", err)
	}
	return &snap, nil
}
