//go:build !appengine

// Package memcache provides an httpcache.Storage that uses gomemcache to
// store cached responses. Compare-and-set uses memcache's native CAS id:
// Store always performs cache Set with Client.Set and its resulting CAS id
// becomes the entry's version; Update uses Client.CompareAndSwap when
// oldVersion is non-empty, or Client.Add when oldVersion is empty (the
// key must be absent).
//
// When built for Google App Engine, this package provides an implementation
// that uses App Engine's memcache service. See the appengine.go file in this
// package for details.
package memcache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/sandrolain/httpcache"
)

// Storage is an implementation of httpcache.Storage that caches responses in
// a memcache server.
type Storage struct {
	*memcache.Client
}

// storageKey modifies an httpcache key for use in memcache. Specifically, it
// prefixes keys to avoid collision with other data stored in memcache.
func storageKey(key string) string {
	return "httpcache:" + key
}

// Load returns the stored entry for key. The context parameter is accepted
// for interface compliance but not used, since gomemcache has no
// context-aware API.
func (s *Storage) Load(_ context.Context, key string) (httpcache.StoredEntry, error) {
	item, err := s.Client.Get(storageKey(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return httpcache.StoredEntry{}, httpcache.ErrNotFound
		}
		return httpcache.StoredEntry{}, fmt.Errorf("memcache load failed for key %q: %w", key, err)
	}
	return httpcache.StoredEntry{Data: item.Value, Version: strconv.FormatUint(item.CasID, 10)}, nil
}

// Store unconditionally writes data for key and returns its resulting CAS id
// as the version.
func (s *Storage) Store(_ context.Context, key string, data []byte) (string, error) {
	mkey := storageKey(key)
	if err := s.Client.Set(&memcache.Item{Key: mkey, Value: data}); err != nil {
		return "", fmt.Errorf("memcache store failed for key %q: %w", key, err)
	}
	item, err := s.Client.Get(mkey)
	if err != nil {
		return "", fmt.Errorf("memcache store failed to read back key %q: %w", key, err)
	}
	return strconv.FormatUint(item.CasID, 10), nil
}

// Update writes newData for key only if its current CAS id matches
// oldVersion, returning ErrCASConflict otherwise. oldVersion == "" requires
// the key to be absent.
func (s *Storage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	mkey := storageKey(key)

	if oldVersion == "" {
		item := &memcache.Item{Key: mkey, Value: newData}
		if err := s.Client.Add(item); err != nil {
			if err == memcache.ErrNotStored {
				return "", httpcache.ErrCASConflict
			}
			return "", fmt.Errorf("memcache update failed for key %q: %w", key, err)
		}
	} else {
		wantCasID, err := strconv.ParseUint(oldVersion, 10, 64)
		if err != nil {
			return "", httpcache.ErrCASConflict
		}
		item := &memcache.Item{Key: mkey, Value: newData, CasID: wantCasID}
		if err := s.Client.CompareAndSwap(item); err != nil {
			if err == memcache.ErrCASConflict || err == memcache.ErrNotStored || err == memcache.ErrCacheMiss {
				return "", httpcache.ErrCASConflict
			}
			return "", fmt.Errorf("memcache update failed for key %q: %w", key, err)
		}
	}

	item, err := s.Client.Get(mkey)
	if err != nil {
		return "", fmt.Errorf("memcache update failed to read back key %q: %w", key, err)
	}
	return strconv.FormatUint(item.CasID, 10), nil
}

// Delete removes the response with key from the cache.
func (s *Storage) Delete(_ context.Context, key string) error {
	if err := s.Client.Delete(storageKey(key)); err != nil {
		if err == memcache.ErrCacheMiss {
			return nil
		}
		return fmt.Errorf("memcache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Keys is not supported by memcache, which exposes no key enumeration API.
func (s *Storage) Keys(_ context.Context, _ string) ([]string, error) {
	return nil, fmt.Errorf("memcache: Keys is not supported")
}

// New returns a new Storage using the provided memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional amount
// of weight.
func New(server ...string) *Storage {
	return NewWithClient(memcache.New(server...))
}

// NewWithClient returns a new Storage with the given memcache client.
func NewWithClient(client *memcache.Client) *Storage {
	return &Storage{client}
}
