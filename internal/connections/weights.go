package connections

import (
	"context"
	"sync"
	"time"

	"github.com/stitch-works/stitch/internal/store"
)

// weightTTL is how long a fetched weight set stays cached before the
// next lookup re-fetches it.
const weightTTL = 5 * time.Minute

// EngineWeights scales each engine's raw strength per user. 1.0 is
// neutral; 0 disables an engine's results entirely.
type EngineWeights struct {
	Semantic      float64 `json:"semantic_similarity"`
	Contradiction float64 `json:"contradiction_detection"`
	Bridge        float64 `json:"thematic_bridge"`
}

// DefaultWeights returns the neutral weight set.
func DefaultWeights() EngineWeights {
	return EngineWeights{Semantic: 1, Contradiction: 1, Bridge: 1}
}

// For returns the weight for one engine type.
func (w EngineWeights) For(t store.ConnectionType) float64 {
	switch t {
	case store.ConnectionSemantic:
		return w.Semantic
	case store.ConnectionContradiction:
		return w.Contradiction
	case store.ConnectionBridge:
		return w.Bridge
	default:
		return 1
	}
}

// WeightLoader fetches a user's preferred engine weights from wherever
// preferences live.
type WeightLoader func(ctx context.Context, userID string) (EngineWeights, error)

type weightEntry struct {
	weights   EngineWeights
	expiresAt time.Time
}

// WeightCache caches per-user engine weights with TTL eviction. It is
// an explicit handle passed into the manager, not package state.
type WeightCache struct {
	mu      sync.Mutex
	entries map[string]weightEntry
	loader  WeightLoader
	now     func() time.Time
}

// NewWeightCache builds a cache over the given loader. A nil loader
// yields DefaultWeights for every user.
func NewWeightCache(loader WeightLoader) *WeightCache {
	if loader == nil {
		loader = func(context.Context, string) (EngineWeights, error) {
			return DefaultWeights(), nil
		}
	}
	return &WeightCache{
		entries: make(map[string]weightEntry),
		loader:  loader,
		now:     time.Now,
	}
}

// Get returns the user's weights, fetching through the loader when the
// cached entry is missing or expired.
func (c *WeightCache) Get(ctx context.Context, userID string) (EngineWeights, error) {
	c.mu.Lock()
	entry, ok := c.entries[userID]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.weights, nil
	}
	c.mu.Unlock()

	weights, err := c.loader(ctx, userID)
	if err != nil {
		return EngineWeights{}, err
	}

	c.mu.Lock()
	c.entries[userID] = weightEntry{weights: weights, expiresAt: c.now().Add(weightTTL)}
	c.mu.Unlock()
	return weights, nil
}

// Invalidate drops a user's cached entry so the next Get re-fetches.
func (c *WeightCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry. Used when a global weight
// default changes.
func (c *WeightCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]weightEntry)
	c.mu.Unlock()
}
