// Package freecache provides an httpcache.Storage backed by
// github.com/coocood/freecache, a zero-GC-overhead in-memory cache with
// automatic LRU eviction. freecache has no native compare-and-set
// primitive, so Update is guarded by an in-process mutex and each stored
// value is prefixed with an 8-byte big-endian version counter.
//
// This backend is suitable for applications that need to cache millions of
// entries with minimal GC overhead and automatic memory management.
//
// Example usage:
//
//	storage := freecache.New(100 * 1024 * 1024) // 100MB cache
//	transport := httpcache.NewTransport(http.DefaultTransport, storage)
package freecache

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/coocood/freecache"
	"github.com/sandrolain/httpcache"
)

// Storage is an implementation of httpcache.Storage that uses freecache for
// storage. It provides zero-GC overhead and automatic LRU eviction when the
// cache is full.
type Storage struct {
	mu    sync.Mutex
	cache *freecache.Cache
}

// New creates a new Storage with the specified size in bytes.
// The cache size will be set to 512KB at minimum.
//
// For large cache sizes, you may want to call debug.SetGCPercent()
// with a lower value to reduce GC overhead.
//
// Example:
//
//	import "runtime/debug"
//	storage := freecache.New(100 * 1024 * 1024) // 100MB
//	debug.SetGCPercent(20)
func New(size int) *Storage {
	return &Storage{cache: freecache.NewCache(size)}
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

// Load returns the cached entry for key, or ErrNotFound if absent. The
// context parameter is accepted for interface compliance but not used, since
// freecache operations never block.
func (s *Storage) Load(_ context.Context, key string) (httpcache.StoredEntry, error) {
	raw, err := s.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return httpcache.StoredEntry{}, httpcache.ErrNotFound
		}
		return httpcache.StoredEntry{}, fmt.Errorf("freecache load failed for key %q: %w", key, err)
	}
	version, data := decode(raw)
	return httpcache.StoredEntry{Data: data, Version: strconv.FormatUint(version, 10)}, nil
}

// Store unconditionally writes data for key, bumping its version counter.
// The entry has no expiration time and will only be evicted when the cache
// is full.
func (s *Storage) Store(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version uint64
	if current, err := s.cache.Get([]byte(key)); err == nil {
		v, _ := decode(current)
		version = v + 1
	}
	if err := s.cache.Set([]byte(key), encode(version, data), 0); err != nil {
		return "", fmt.Errorf("freecache store failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(version, 10), nil
}

// Update writes newData for key only if its current version matches
// oldVersion, returning ErrCASConflict otherwise. oldVersion == "" requires
// the key to be absent.
func (s *Storage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.cache.Get([]byte(key))
	exists := err == nil
	var currentVersion uint64
	if exists {
		currentVersion, _ = decode(raw)
	} else if err != freecache.ErrNotFound {
		return "", fmt.Errorf("freecache update failed for key %q: %w", key, err)
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
	if err := s.cache.Set([]byte(key), encode(newVersion, newData), 0); err != nil {
		return "", fmt.Errorf("freecache update failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(newVersion, 10), nil
}

// Delete removes the entry with the given key from the cache.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.cache.Del([]byte(key))
	return nil
}

// Keys returns all stored keys with the given prefix. freecache exposes no
// indexed prefix scan, so this iterates the whole cache.
func (s *Storage) Keys(_ context.Context, prefix string) ([]string, error) {
	it := s.cache.NewIterator()
	var keys []string
	for {
		entry := it.Next()
		if entry == nil {
			break
		}
		key := string(entry.Key)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Clear removes all entries from the cache.
func (s *Storage) Clear() {
	s.cache.Clear()
}

// EntryCount returns the number of entries currently in the cache.
func (s *Storage) EntryCount() int64 {
	return s.cache.EntryCount()
}

// HitRate returns the ratio of cache hits to total lookups.
func (s *Storage) HitRate() float64 {
	return s.cache.HitRate()
}

// EvacuateCount returns the number of times entries were evicted due to the
// cache being full.
func (s *Storage) EvacuateCount() int64 {
	return s.cache.EvacuateCount()
}

// ExpiredCount returns the number of times entries expired.
func (s *Storage) ExpiredCount() int64 {
	return s.cache.ExpiredCount()
}

// ResetStatistics resets all statistics counters (hit rate, evictions, etc.).
func (s *Storage) ResetStatistics() {
	s.cache.ResetStatistics()
}
