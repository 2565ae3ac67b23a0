package compresscache

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
	"github.com/sandrolain/httpcache"
)

// SnappyStorage wraps an httpcache.Storage with automatic Snappy compression/decompression
type SnappyStorage struct {
	*baseCompressStorage
}

// SnappyConfig holds the configuration for Snappy compression
type SnappyConfig struct {
	// Storage is the underlying storage backend (required)
	Storage httpcache.Storage
}

// NewSnappy creates a new SnappyStorage with Snappy compression
func NewSnappy(config SnappyConfig) (*SnappyStorage, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}

	return &SnappyStorage{
		baseCompressStorage: newBaseCompressStorage(config.Storage, Snappy),
	}, nil
}

// compress compresses data using Snappy algorithm
func (c *SnappyStorage) compress(data []byte) ([]byte, error) {
	compressed := snappy.Encode(nil, data)
	return compressed, nil
}

// decompress decompresses data using Snappy algorithm
func (c *SnappyStorage) decompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return decompressed, nil
}

// Load retrieves and decompresses a value from the storage.
func (c *SnappyStorage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	return c.load(ctx, key, c.decompress)
}

// Store compresses and stores a value in the storage.
func (c *SnappyStorage) Store(ctx context.Context, key string, value []byte) (string, error) {
	return c.store(ctx, key, value, c.compress)
}

// Update compresses and conditionally stores a value in the storage.
func (c *SnappyStorage) Update(ctx context.Context, key, oldVersion string, newValue []byte) (string, error) {
	return c.update(ctx, key, oldVersion, newValue, c.compress)
}

// Delete removes a value from the storage.
func (c *SnappyStorage) Delete(ctx context.Context, key string) error {
	return c.delete(ctx, key)
}

// Keys lists stored keys by prefix.
func (c *SnappyStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.keys(ctx, prefix)
}

// Stats returns compression statistics
func (c *SnappyStorage) Stats() Stats {
	return c.stats()
}

// Verify interface implementation at compile time
var _ httpcache.Storage = (*SnappyStorage)(nil)
