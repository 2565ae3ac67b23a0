package compresscache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/sandrolain/httpcache"
)

// BrotliStorage wraps an httpcache.Storage with automatic Brotli compression/decompression
type BrotliStorage struct {
	*baseCompressStorage
	level int
}

// BrotliConfig holds the configuration for Brotli compression
type BrotliConfig struct {
	// Storage is the underlying storage backend (required)
	Storage httpcache.Storage

	// Level is the compression level (0 to 11)
	// Default: 6
	Level int
}

// NewBrotli creates a new BrotliStorage with Brotli compression
func NewBrotli(config BrotliConfig) (*BrotliStorage, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}

	// Set defaults
	if config.Level == 0 {
		config.Level = 6 // Default brotli level
	}

	// Validate level (0-11 for brotli)
	if config.Level < 0 || config.Level > 11 {
		return nil, fmt.Errorf("invalid brotli compression level: %d", config.Level)
	}

	return &BrotliStorage{
		baseCompressStorage: newBaseCompressStorage(config.Storage, Brotli),
		level:               config.Level,
	}, nil
}

// compress compresses data using Brotli algorithm
func (c *BrotliStorage) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := brotli.NewWriterLevel(&buf, c.level)
	if _, err := w.Write(data); err != nil {
		closeErr := w.Close()
		_ = closeErr
		return nil, fmt.Errorf("brotli write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close failed: %w", err)
	}

	return buf.Bytes(), nil
}

// decompress decompresses data using Brotli algorithm
func (c *BrotliStorage) decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli read failed: %w", err)
	}
	return decompressed, nil
}

// Load retrieves and decompresses a value from the storage.
func (c *BrotliStorage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	return c.load(ctx, key, c.decompress)
}

// Store compresses and stores a value in the storage.
func (c *BrotliStorage) Store(ctx context.Context, key string, value []byte) (string, error) {
	return c.store(ctx, key, value, c.compress)
}

// Update compresses and conditionally stores a value in the storage.
func (c *BrotliStorage) Update(ctx context.Context, key, oldVersion string, newValue []byte) (string, error) {
	return c.update(ctx, key, oldVersion, newValue, c.compress)
}

// Delete removes a value from the storage.
func (c *BrotliStorage) Delete(ctx context.Context, key string) error {
	return c.delete(ctx, key)
}

// Keys lists stored keys by prefix.
func (c *BrotliStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.keys(ctx, prefix)
}

// Stats returns compression statistics
func (c *BrotliStorage) Stats() Stats {
	return c.stats()
}

// Verify interface implementation at compile time
var _ httpcache.Storage = (*BrotliStorage)(nil)
