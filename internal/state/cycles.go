package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"poly-dump-hedge/internal/strategy"
)

const (
	cycleKeyPrefix  = "cycle:"
	currentCycleKey = "cycle:current"
)

func cycleKey(id string) string {
	return cycleKeyPrefix + id
}

// SaveTradeCycle upserts a cycle checkpoint keyed by cycle id and repoints the
// current-cycle marker. Replaying the same checkpoint is a no-op overwrite,
// which keeps restarts idempotent.
func SaveTradeCycle(ctx context.Context, store Store, cycle strategy.TradeCycle) error {
	if store == nil {
		return nil
	}
	if cycle.ID == "" {
		return fmt.Errorf("trade cycle id is required")
	}
	payload, err := json.Marshal(cycle)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, cycleKey(cycle.ID), string(payload)); err != nil {
		return err
	}
	return store.Set(ctx, currentCycleKey, cycle.ID)
}

// LoadTradeCycle fetches one persisted cycle by id.
func LoadTradeCycle(ctx context.Context, store Store, id string) (strategy.TradeCycle, bool, error) {
	if store == nil || id == "" {
		return strategy.TradeCycle{}, false, nil
	}
	raw, ok, err := store.Get(ctx, cycleKey(id))
	if err != nil || !ok {
		return strategy.TradeCycle{}, false, err
	}
	var cycle strategy.TradeCycle
	if err := json.Unmarshal([]byte(raw), &cycle); err != nil {
		return strategy.TradeCycle{}, false, err
	}
	return cycle, true, nil
}

// LoadCurrentTradeCycle resolves the most recently checkpointed cycle.
func LoadCurrentTradeCycle(ctx context.Context, store Store) (strategy.TradeCycle, bool, error) {
	if store == nil {
		return strategy.TradeCycle{}, false, nil
	}
	id, ok, err := store.Get(ctx, currentCycleKey)
	if err != nil || !ok || strings.TrimSpace(id) == "" {
		return strategy.TradeCycle{}, false, err
	}
	return LoadTradeCycle(ctx, store, id)
}

// ListTradeCycles returns every persisted cycle, unordered.
func ListTradeCycles(ctx context.Context, store Store) ([]strategy.TradeCycle, error) {
	if store == nil {
		return nil, nil
	}
	rows, err := store.List(ctx, cycleKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]strategy.TradeCycle, 0, len(rows))
	for key, raw := range rows {
		if key == currentCycleKey {
			continue
		}
		var cycle strategy.TradeCycle
		if err := json.Unmarshal([]byte(raw), &cycle); err != nil {
			return nil, fmt.Errorf("corrupt cycle record %s: %w", key, err)
		}
		out = append(out, cycle)
	}
	return out, nil
}
