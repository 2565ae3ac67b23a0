// Package multicache provides a multi-tiered cache implementation that allows
// cascading through multiple storage backends with automatic fallback and
// promotion. This enables sophisticated caching strategies with different
// performance and persistence characteristics at each tier.
package multicache

import (
	"context"

	httpcache "github.com/sandrolain/httpcache"
)

// MultiCache implements a multi-tiered caching strategy where storage tiers are
// ordered from fastest/smallest (first) to slowest/largest (last). On reads,
// it searches each tier in order and promotes found values to faster tiers.
// On writes, it stores to all tiers. This allows hot data to naturally migrate
// to faster caches while maintaining persistence in slower tiers.
//
// Example use case:
//   - Tier 1: In-memory LRU (fast, small, volatile)
//   - Tier 2: Redis (medium speed, larger, persistent)
//   - Tier 3: PostgreSQL (slower, largest, highly persistent)
type MultiCache struct {
	tiers []httpcache.Storage
}

// New creates a MultiCache with the specified storage tiers.
// Tiers should be ordered from fastest/smallest to slowest/largest.
// At least one tier must be provided, and all tiers must be non-nil and unique.
//
// Returns nil if:
//   - No tiers are provided
//   - Any tier is nil
//   - Duplicate tiers are detected
func New(tiers ...httpcache.Storage) *MultiCache {
	if len(tiers) == 0 {
		return nil
	}

	// Validate all tiers are non-nil and unique
	seen := make(map[httpcache.Storage]bool)
	for _, tier := range tiers {
		if tier == nil {
			return nil
		}
		if seen[tier] {
			return nil
		}
		seen[tier] = true
	}

	return &MultiCache{
		tiers: tiers,
	}
}

// Load returns the entry stored under key. It searches each tier in order,
// starting with the fastest. When an entry is found in a slower tier, it is
// automatically promoted (written) to all faster tiers for subsequent quick
// access; promotion is best-effort and its errors do not affect the result.
//
// Returns httpcache.ErrNotFound if no tier holds the key, or the first
// non-not-found error encountered while probing a tier.
func (c *MultiCache) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	for i, tier := range c.tiers {
		entry, err := tier.Load(ctx, key)
		if err == httpcache.ErrNotFound {
			continue
		}
		if err != nil {
			return httpcache.StoredEntry{}, err
		}
		c.promoteToFasterTiers(ctx, key, entry.Data, i)
		return entry, nil
	}
	return httpcache.StoredEntry{}, httpcache.ErrNotFound
}

// Store writes value unconditionally to every tier, fastest to slowest.
// The returned version is the one reported by the fastest tier, which acts
// as the CAS authority for subsequent Update calls.
func (c *MultiCache) Store(ctx context.Context, key string, value []byte) (string, error) {
	var primaryVersion string
	for i, tier := range c.tiers {
		version, err := tier.Store(ctx, key, value)
		if err != nil {
			return "", err
		}
		if i == 0 {
			primaryVersion = version
		}
	}
	return primaryVersion, nil
}

// Update conditionally writes newValue to the fastest tier using oldVersion
// as the CAS token, then unconditionally overwrites every slower tier with
// the same value. A conflict on the fastest tier aborts before any slower
// tier is touched, so httpcache.ErrCASConflict propagates without side effects.
func (c *MultiCache) Update(ctx context.Context, key, oldVersion string, newValue []byte) (string, error) {
	if len(c.tiers) == 0 {
		return "", httpcache.ErrNotFound
	}

	newVersion, err := c.tiers[0].Update(ctx, key, oldVersion, newValue)
	if err != nil {
		return "", err
	}

	for _, tier := range c.tiers[1:] {
		if _, err := tier.Store(ctx, key, newValue); err != nil {
			return "", err
		}
	}

	return newVersion, nil
}

// Delete removes the value from all cache tiers to maintain consistency.
// Returns an error if any tier fails to delete the value.
func (c *MultiCache) Delete(ctx context.Context, key string) error {
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists keys by prefix from the slowest tier, on the assumption that it
// holds the most complete key set: faster tiers are free to evict entries
// the slowest tier still retains.
func (c *MultiCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.tiers[len(c.tiers)-1].Keys(ctx, prefix)
}

// promoteToFasterTiers writes the value to all tiers faster than the one
// where it was found. This optimizes future reads by moving hot data to
// faster tiers. Promotion is best-effort: a failure on one tier does not
// stop the read from succeeding, nor does it abort promotion to other tiers.
func (c *MultiCache) promoteToFasterTiers(ctx context.Context, key string, value []byte, foundAtTier int) {
	for i := 0; i < foundAtTier; i++ {
		_, _ = c.tiers[i].Store(ctx, key, value)
	}
}

var _ httpcache.Storage = (*MultiCache)(nil)
