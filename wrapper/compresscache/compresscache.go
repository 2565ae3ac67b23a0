// Package compresscache provides a storage wrapper that automatically compresses
// cached data to reduce storage requirements and network bandwidth usage.
// Supports multiple compression algorithms: gzip, brotli, and snappy.
package compresscache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sandrolain/httpcache"
)

// Algorithm represents the compression algorithm to use
type Algorithm int

const (
	// Gzip uses gzip compression (good balance of compression and speed)
	Gzip Algorithm = iota
	// Brotli uses brotli compression (best compression ratio, slower)
	Brotli
	// Snappy uses snappy compression (fastest, lower compression ratio)
	Snappy
)

// String returns the string representation of the algorithm
func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Stats holds compression statistics
type Stats struct {
	CompressedBytes   int64   // Total bytes after compression
	UncompressedBytes int64   // Total bytes before compression
	CompressedCount   int64   // Number of compressed entries
	UncompressedCount int64   // Number of entries stored uncompressed (compression failed)
	CompressionRatio  float64 // Compression ratio (0.0-1.0, lower is better)
	SavingsPercent    float64 // Space savings percentage
}

// compressFunc is a function type for compression operations
type compressFunc func([]byte) ([]byte, error)

// decompressFunc is a function type for decompression operations
type decompressFunc func([]byte) ([]byte, error)

// baseCompressStorage provides common functionality for all compression implementations.
// It wraps an httpcache.Storage, transparently compressing values on write and
// decompressing them on read.
type baseCompressStorage struct {
	storage   httpcache.Storage
	algorithm Algorithm

	// Statistics
	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

// newBaseCompressStorage creates a new base compression storage wrapper
func newBaseCompressStorage(storage httpcache.Storage, algorithm Algorithm) *baseCompressStorage {
	return &baseCompressStorage{
		storage:   storage,
		algorithm: algorithm,
	}
}

// decodeValue strips the compression marker from raw and decompresses it.
func (c *baseCompressStorage) decodeValue(key string, raw []byte, decompressFn decompressFunc) ([]byte, error) {
	if len(raw) < 1 {
		return raw, nil
	}

	// First byte indicates compression algorithm
	marker := raw[0]
	if marker == 0 {
		// Not compressed
		return raw[1:], nil
	}

	storedAlgo := Algorithm(marker - 1)
	decompressed, err := c.decompressWithAlgorithm(raw[1:], storedAlgo, decompressFn)
	if err != nil {
		httpcache.GetLogger().Warn("decompression failed",
			"key", key,
			"algorithm", storedAlgo.String(),
			"error", err)
		return nil, err
	}
	return decompressed, nil
}

// load retrieves and decompresses a value from the storage
func (c *baseCompressStorage) load(ctx context.Context, key string, decompressFn decompressFunc) (httpcache.StoredEntry, error) {
	entry, err := c.storage.Load(ctx, key)
	if err != nil {
		return httpcache.StoredEntry{}, err
	}

	data, err := c.decodeValue(key, entry.Data, decompressFn)
	if err != nil {
		return httpcache.StoredEntry{}, err
	}
	return httpcache.StoredEntry{Data: data, Version: entry.Version}, nil
}

// decompressWithAlgorithm decompresses data, delegating to the appropriate decompressor
func (c *baseCompressStorage) decompressWithAlgorithm(data []byte, algorithm Algorithm, decompressFn decompressFunc) ([]byte, error) {
	// If the stored algorithm matches ours, use our decompressor
	if algorithm == c.algorithm {
		return decompressFn(data)
	}

	// Otherwise, we need to use the appropriate decompressor for the stored algorithm
	// This allows cross-algorithm decompression when the backend holds entries
	// written by a different compresscache instance.
	return c.decompressAny(data, algorithm)
}

// decompressAny decompresses data using any supported algorithm
func (c *baseCompressStorage) decompressAny(data []byte, algorithm Algorithm) ([]byte, error) {
	switch algorithm {
	case Gzip:
		tempStorage := &GzipStorage{baseCompressStorage: c}
		return tempStorage.decompress(data)
	case Brotli:
		tempStorage := &BrotliStorage{baseCompressStorage: c}
		return tempStorage.decompress(data)
	case Snappy:
		tempStorage := &SnappyStorage{baseCompressStorage: c}
		return tempStorage.decompress(data)
	default:
		return nil, fmt.Errorf("unsupported decompression algorithm: %v", algorithm)
	}
}

// encodeValue compresses value, falling back to an uncompressed marker on failure.
func (c *baseCompressStorage) encodeValue(key string, value []byte, compressFn compressFunc) []byte {
	compressed, err := compressFn(value)
	if err != nil {
		httpcache.GetLogger().Warn("compression failed, storing uncompressed",
			"key", key,
			"algorithm", c.algorithm.String(),
			"error", err)
		data := make([]byte, len(value)+1)
		data[0] = 0
		copy(data[1:], value)
		c.uncompressedCount.Add(1)
		c.uncompressedBytes.Add(int64(len(value)))
		return data
	}

	// Prefix with marker (algorithm + 1, so 0 means uncompressed)
	data := make([]byte, len(compressed)+1)
	data[0] = byte(c.algorithm + 1)
	copy(data[1:], compressed)

	c.compressedCount.Add(1)
	c.compressedBytes.Add(int64(len(compressed)))
	c.uncompressedBytes.Add(int64(len(value)))
	return data
}

// store compresses and stores a value in the storage
func (c *baseCompressStorage) store(ctx context.Context, key string, value []byte, compressFn compressFunc) (string, error) {
	return c.storage.Store(ctx, key, c.encodeValue(key, value, compressFn))
}

// update compresses and conditionally stores a value in the storage
func (c *baseCompressStorage) update(ctx context.Context, key, oldVersion string, value []byte, compressFn compressFunc) (string, error) {
	return c.storage.Update(ctx, key, oldVersion, c.encodeValue(key, value, compressFn))
}

// delete removes a value from the storage
func (c *baseCompressStorage) delete(ctx context.Context, key string) error {
	return c.storage.Delete(ctx, key)
}

// keys lists stored keys by prefix. Keys themselves are never compressed, so
// this delegates directly to the underlying storage.
func (c *baseCompressStorage) keys(ctx context.Context, prefix string) ([]string, error) {
	return c.storage.Keys(ctx, prefix)
}

// stats returns compression statistics
func (c *baseCompressStorage) stats() Stats {
	compressed := c.compressedBytes.Load()
	uncompressed := c.uncompressedBytes.Load()

	var ratio, savings float64
	if uncompressed > 0 {
		ratio = float64(compressed) / float64(uncompressed)
		savings = (1.0 - ratio) * 100
	}

	return Stats{
		CompressedBytes:   compressed,
		UncompressedBytes: uncompressed,
		CompressedCount:   c.compressedCount.Load(),
		UncompressedCount: c.uncompressedCount.Load(),
		CompressionRatio:  ratio,
		SavingsPercent:    savings,
	}
}
