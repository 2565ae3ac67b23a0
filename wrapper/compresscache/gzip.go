package compresscache

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/sandrolain/httpcache"
)

// GzipStorage wraps an httpcache.Storage with automatic Gzip compression/decompression
type GzipStorage struct {
	*baseCompressStorage
	level int
}

// GzipConfig holds the configuration for Gzip compression
type GzipConfig struct {
	// Storage is the underlying storage backend (required)
	Storage httpcache.Storage

	// Level is the compression level (-2 to 9)
	// Default: gzip.DefaultCompression (-1)
	Level int
}

// NewGzip creates a new GzipStorage with Gzip compression
func NewGzip(config GzipConfig) (*GzipStorage, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}

	if config.Level == 0 {
		config.Level = gzip.DefaultCompression
	}

	if config.Level < gzip.HuffmanOnly || config.Level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip compression level: %d", config.Level)
	}

	return &GzipStorage{
		baseCompressStorage: newBaseCompressStorage(config.Storage, Gzip),
		level:               config.Level,
	}, nil
}

// compress compresses data using Gzip algorithm
func (c *GzipStorage) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer creation failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}

	return buf.Bytes(), nil
}

// decompress decompresses data using Gzip algorithm
func (c *GzipStorage) decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return decompressed, nil
}

// Load retrieves and decompresses a value from the storage.
func (c *GzipStorage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	return c.load(ctx, key, c.decompress)
}

// Store compresses and stores a value in the storage.
func (c *GzipStorage) Store(ctx context.Context, key string, value []byte) (string, error) {
	return c.store(ctx, key, value, c.compress)
}

// Update compresses and conditionally stores a value in the storage.
func (c *GzipStorage) Update(ctx context.Context, key, oldVersion string, newValue []byte) (string, error) {
	return c.update(ctx, key, oldVersion, newValue, c.compress)
}

// Delete removes a value from the storage.
func (c *GzipStorage) Delete(ctx context.Context, key string) error {
	return c.delete(ctx, key)
}

// Keys lists stored keys by prefix.
func (c *GzipStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.keys(ctx, prefix)
}

// Stats returns compression statistics
func (c *GzipStorage) Stats() Stats {
	return c.stats()
}

// Verify interface implementation at compile time
var _ httpcache.Storage = (*GzipStorage)(nil)
