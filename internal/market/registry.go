package market

import (
	"sort"
	"sync"
	"time"
)

type registryKey struct {
	Exchange string
	Symbol   string
}

// Registry holds the latest BBO snapshot per (exchange, symbol).
//
// Each key is logically single-writer (the owning exchange adapter), so a
// plain RWMutex with per-key replacement is sufficient; no cross-key
// coordination happens inside the registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[registryKey]BboSnapshot
	maxAge  time.Duration
}

// NewRegistry constructs a registry with the given staleness threshold.
func NewRegistry(maxAge time.Duration) *Registry {
	if maxAge <= 0 {
		maxAge = 90 * time.Second
	}
	return &Registry{
		entries: make(map[registryKey]BboSnapshot),
		maxAge:  maxAge,
	}
}

// MaxAge returns the staleness threshold.
func (r *Registry) MaxAge() time.Duration {
	return r.maxAge
}

// Update admits a snapshot if it is valid and strictly newer than the current
// entry for its (exchange, symbol) key. It returns false when the snapshot is
// out of order; ordering is decided by observation timestamp, not arrival.
func (r *Registry) Update(snap BboSnapshot) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, err
	}

	key := registryKey{Exchange: snap.Exchange, Symbol: snap.Symbol}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[key]; ok && !snap.ObservedAt.After(current.ObservedAt) {
		return false, nil
	}
	r.entries[key] = snap
	return true, nil
}

// Get returns the current snapshot for (exchange, symbol) together with a
// freshness flag relative to now.
func (r *Registry) Get(exchange, symbol string, now time.Time) (BboSnapshot, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.entries[registryKey{Exchange: exchange, Symbol: symbol}]
	if !ok {
		return BboSnapshot{}, false, false
	}
	return snap, r.fresh(snap, now), true
}

// SnapshotsFor returns exchange → snapshot for all exchanges currently
// tracking the symbol, fresh or not.
func (r *Registry) SnapshotsFor(symbol string) map[string]BboSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BboSnapshot)
	for key, snap := range r.entries {
		if key.Symbol == symbol {
			out[key.Exchange] = snap
		}
	}
	return out
}

// FreshFor returns exchange → snapshot restricted to entries within the
// staleness threshold at the given instant.
func (r *Registry) FreshFor(symbol string, now time.Time) map[string]BboSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BboSnapshot)
	for key, snap := range r.entries {
		if key.Symbol == symbol && r.fresh(snap, now) {
			out[key.Exchange] = snap
		}
	}
	return out
}

// Symbols lists every symbol with at least one entry, sorted for stable
// iteration by callers.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range r.entries {
		seen[key.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (r *Registry) fresh(snap BboSnapshot, now time.Time) bool {
	return snap.Age(now) <= r.maxAge
}
