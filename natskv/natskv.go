// Package natskv provides an httpcache.Storage backed by a NATS JetStream
// Key/Value store. Compare-and-set uses the bucket's native per-key
// revision: Create rejects an existing key, Update rejects a stale
// revision.
package natskv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sandrolain/httpcache"
)

// Config holds the configuration for creating a NATS K/V storage.
type Config struct {
	// NATSUrl is the URL of the NATS server (e.g., "nats://localhost:4222").
	// If empty, defaults to nats.DefaultURL.
	NATSUrl string

	// Bucket is the name of the K/V bucket to use for caching.
	// Required field.
	Bucket string

	// Description is an optional description for the K/V bucket.
	Description string

	// TTL is the time-to-live for cache entries.
	// If zero, entries don't expire (unless deleted by NATS based on other policies).
	TTL time.Duration

	// NATSOptions are additional options to pass to nats.Connect.
	// Optional.
	NATSOptions []nats.Option
}

const keyPrefix = "httpcache."

// storage is an implementation of httpcache.Storage backed by a NATS
// JetStream Key/Value store.
type storage struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// natsKey modifies an httpcache key for use in NATS K/V. Specifically, it
// prefixes keys to avoid collision with other data stored in the bucket.
func natsKey(key string) string {
	return keyPrefix + key
}

func (s storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	entry, err := s.kv.Get(ctx, natsKey(key))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return httpcache.StoredEntry{}, httpcache.ErrNotFound
		}
		return httpcache.StoredEntry{}, fmt.Errorf("natskv load failed for key %q: %w", key, err)
	}
	return httpcache.StoredEntry{
		Data:    entry.Value(),
		Version: strconv.FormatUint(entry.Revision(), 10),
	}, nil
}

func (s storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	revision, err := s.kv.Put(ctx, natsKey(key), data)
	if err != nil {
		return "", fmt.Errorf("natskv store failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(revision, 10), nil
}

func (s storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	if oldVersion == "" {
		revision, err := s.kv.Create(ctx, natsKey(key), newData)
		if err != nil {
			if err == jetstream.ErrKeyExists {
				return "", httpcache.ErrCASConflict
			}
			return "", fmt.Errorf("natskv update failed for key %q: %w", key, err)
		}
		return strconv.FormatUint(revision, 10), nil
	}

	wantRevision, err := strconv.ParseUint(oldVersion, 10, 64)
	if err != nil {
		return "", httpcache.ErrCASConflict
	}

	revision, err := s.kv.Update(ctx, natsKey(key), newData, wantRevision)
	if err != nil {
		return "", httpcache.ErrCASConflict
	}
	return strconv.FormatUint(revision, 10), nil
}

func (s storage) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, natsKey(key)); err != nil {
		if err != jetstream.ErrKeyNotFound {
			return fmt.Errorf("natskv delete failed for key %q: %w", key, err)
		}
	}
	return nil
}

func (s storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("natskv keys scan failed: %w", err)
	}

	var keys []string
	for name := range lister.Keys() {
		key := strings.TrimPrefix(name, keyPrefix)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close closes the underlying NATS connection if it was created by New().
// It's a no-op when using NewWithKeyValue().
func (s storage) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// New creates a new Storage with the given configuration. It establishes a
// connection to NATS, creates a JetStream context, and creates or updates
// the K/V bucket according to the configuration. The caller should call
// Close() when done.
func New(ctx context.Context, config Config) (httpcache.Storage, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	url := config.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, config.NATSOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kvConfig := jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		TTL:         config.TTL,
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, kvConfig)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create or update K/V bucket: %w", err)
	}

	return storage{kv: kv, nc: nc}, nil
}

// NewWithKeyValue returns a new Storage with the given NATS JetStream
// KeyValue store. This constructor is useful when you want to manage the
// NATS connection yourself. The returned storage will not close the NATS
// connection when Close() is called.
func NewWithKeyValue(kv jetstream.KeyValue) httpcache.Storage {
	return storage{kv: kv, nc: nil}
}
