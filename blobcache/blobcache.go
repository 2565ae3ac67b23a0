// Package blobcache provides an httpcache.Storage implementation that uses
// Go Cloud Development Kit (CDK) blob storage for cloud-agnostic cache
// storage.
//
// Supports multiple cloud providers:
//   - Amazon S3
//   - Google Cloud Storage
//   - Azure Blob Storage
//   - In-memory (for testing)
//   - Local filesystem
//
// Blob storage APIs expose no portable compare-and-set primitive, so Update
// is guarded by an in-process mutex; each stored blob is prefixed with an
// 8-byte big-endian version counter. Keys are hex-encoded rather than
// hashed so that prefix relationships in the original key survive encoding,
// letting Keys(prefix) use the bucket's native prefix listing.
//
// Example usage with S3:
//
//	import (
//	    "context"
//	    _ "gocloud.dev/blob/s3blob"
//	    "github.com/sandrolain/httpcache/blobcache"
//	)
//
//	ctx := context.Background()
//	storage, err := blobcache.New(ctx, blobcache.Config{
//	    BucketURL: "s3://my-bucket?region=us-west-2",
//	    KeyPrefix: "httpcache/",
//	})
package blobcache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandrolain/httpcache"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Config holds the configuration for the blob storage.
type Config struct {
	// BucketURL is the Go Cloud blob URL (e.g., "s3://bucket?region=us-west-2")
	BucketURL string

	// KeyPrefix is prepended to all storage keys (default: "cache/")
	KeyPrefix string

	// Timeout for blob operations (default: 30s)
	Timeout time.Duration

	// Bucket is an optional pre-opened bucket (if nil, BucketURL is used)
	Bucket *blob.Bucket
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "cache/",
		Timeout:   30 * time.Second,
	}
}

// storage implements httpcache.Storage using Go Cloud blob storage.
type storage struct {
	mu         sync.Mutex
	bucket     *blob.Bucket
	keyPrefix  string
	timeout    time.Duration
	ownsBucket bool // true if we opened the bucket (should close it)
}

// New creates a new blob storage with the given configuration.
// The bucket is opened using the BucketURL.
// Call Close() to clean up resources when done.
func New(ctx context.Context, config Config) (httpcache.Storage, error) {
	if config.BucketURL == "" && config.Bucket == nil {
		return nil, fmt.Errorf("either BucketURL or Bucket must be provided")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	var bucket *blob.Bucket
	var ownsBucket bool
	var err error

	if config.Bucket != nil {
		bucket = config.Bucket
		ownsBucket = false
	} else {
		bucket, err = blob.OpenBucket(ctx, config.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket: %w", err)
		}
		ownsBucket = true
	}

	return &storage{
		bucket:     bucket,
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
		ownsBucket: ownsBucket,
	}, nil
}

// NewWithBucket creates a storage using an already-opened bucket.
// The caller is responsible for closing the bucket.
func NewWithBucket(bucket *blob.Bucket, keyPrefix string, timeout time.Duration) httpcache.Storage {
	if keyPrefix == "" {
		keyPrefix = DefaultConfig().KeyPrefix
	}
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}

	return &storage{
		bucket:     bucket,
		keyPrefix:  keyPrefix,
		timeout:    timeout,
		ownsBucket: false,
	}
}

// blobKey generates a blob key from a storage key. Hex encoding is
// prefix-preserving, so blobs naturally group by the original key's prefix.
func (s *storage) blobKey(key string) string {
	return s.keyPrefix + hex.EncodeToString([]byte(key))
}

func (s *storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func encode(version uint64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, version)
	copy(buf[8:], data)
	return buf
}

func decode(raw []byte) (version uint64, data []byte) {
	if len(raw) < 8 {
		return 0, raw
	}
	return binary.BigEndian.Uint64(raw), raw[8:]
}

func (s *storage) read(ctx context.Context, blobKey string) ([]byte, bool, error) {
	reader, err := s.bucket.NewReader(ctx, blobKey, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer reader.Close() //nolint:errcheck // best effort cleanup, error already handled

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *storage) write(ctx context.Context, blobKey string, data []byte) error {
	writer, err := s.bucket.NewWriter(ctx, blobKey, nil)
	if err != nil {
		return err
	}
	_, writeErr := writer.Write(data)
	closeErr := writer.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// Load returns the stored entry for key, or ErrNotFound if absent.
func (s *storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, found, err := s.read(ctx, s.blobKey(key))
	if err != nil {
		return httpcache.StoredEntry{}, fmt.Errorf("blobcache load failed for key %q: %w", key, err)
	}
	if !found {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	version, data := decode(raw)
	return httpcache.StoredEntry{Data: data, Version: strconv.FormatUint(version, 10)}, nil
}

// Store unconditionally writes data for key, bumping its version counter.
func (s *storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	blobKey := s.blobKey(key)
	var version uint64
	if current, found, err := s.read(ctx, blobKey); err == nil && found {
		v, _ := decode(current)
		version = v + 1
	}

	if err := s.write(ctx, blobKey, encode(version, data)); err != nil {
		return "", fmt.Errorf("blobcache store failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(version, 10), nil
}

// Update writes newData for key only if its current version matches
// oldVersion, returning ErrCASConflict otherwise. oldVersion == "" requires
// the key to be absent.
func (s *storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	blobKey := s.blobKey(key)
	raw, exists, err := s.read(ctx, blobKey)
	if err != nil {
		return "", fmt.Errorf("blobcache update failed for key %q: %w", key, err)
	}

	var currentVersion uint64
	if exists {
		currentVersion, _ = decode(raw)
	}

	wantVersion, parseErr := strconv.ParseUint(oldVersion, 10, 64)
	if oldVersion == "" {
		if exists {
			return "", httpcache.ErrCASConflict
		}
		wantVersion = 0
	} else {
		if parseErr != nil || !exists || currentVersion != wantVersion {
			return "", httpcache.ErrCASConflict
		}
	}

	newVersion := wantVersion + 1
	if err := s.write(ctx, blobKey, encode(newVersion, newData)); err != nil {
		return "", fmt.Errorf("blobcache update failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(newVersion, 10), nil
}

// Delete removes the blob for key from the bucket.
func (s *storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.bucket.Delete(ctx, s.blobKey(key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("blobcache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys with the given prefix, using the bucket's
// native prefix listing against the hex-encoded key space.
func (s *storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	listPrefix := s.keyPrefix + hex.EncodeToString([]byte(prefix))
	iter := s.bucket.List(&blob.ListOptions{Prefix: listPrefix})

	var keys []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blobcache keys scan failed: %w", err)
		}
		encoded := strings.TrimPrefix(obj.Key, s.keyPrefix)
		raw, err := hex.DecodeString(encoded)
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

// Close closes the bucket if it was opened by New().
// If the bucket was provided via NewWithBucket(), it's not closed.
func (s *storage) Close() error {
	if s.ownsBucket {
		if err := s.bucket.Close(); err != nil {
			return fmt.Errorf("failed to close blob bucket: %w", err)
		}
	}
	return nil
}
