//go:build appengine

// Package memcache provides an httpcache.Storage that uses App Engine's
// memcache package to store cached responses.
//
// When not built for Google App Engine, this package provides an
// implementation that connects to a specified memcached server. See the
// memcache.go file in this package for details.
package memcache

import (
	"context"
	"fmt"

	"appengine"
	"appengine/memcache"

	"github.com/sandrolain/httpcache"
)

// Storage is an implementation of httpcache.Storage that caches responses in
// App Engine's memcache.
type Storage struct {
	appengine.Context
}

// storageKey modifies an httpcache key for use in memcache. Specifically, it
// prefixes keys to avoid collision with other data stored in memcache.
func storageKey(key string) string {
	return "httpcache:" + key
}

// Load returns the stored entry for key. The ctx parameter is accepted for
// interface compliance but not used; App Engine memcache uses its own
// context mechanism.
func (s *Storage) Load(_ context.Context, key string) (httpcache.StoredEntry, error) {
	item, err := memcache.Get(s.Context, storageKey(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return httpcache.StoredEntry{}, httpcache.ErrNotFound
		}
		s.Context.Errorf("error loading cached response: %v", err)
		return httpcache.StoredEntry{}, err
	}
	return httpcache.StoredEntry{Data: item.Value, Version: fmt.Sprintf("%d", item.CasID)}, nil
}

// Store unconditionally writes data for key.
func (s *Storage) Store(_ context.Context, key string, data []byte) (string, error) {
	mkey := storageKey(key)
	item := &memcache.Item{Key: mkey, Value: data}
	if err := memcache.Set(s.Context, item); err != nil {
		s.Context.Errorf("error caching response: %v", err)
		return "", err
	}
	stored, err := memcache.Get(s.Context, mkey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", stored.CasID), nil
}

// Update writes newData for key only if its current CAS id matches
// oldVersion, returning ErrCASConflict otherwise. oldVersion == "" requires
// the key to be absent.
func (s *Storage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	mkey := storageKey(key)

	if oldVersion == "" {
		item := &memcache.Item{Key: mkey, Value: newData}
		if err := memcache.Add(s.Context, item); err != nil {
			if err == memcache.ErrNotStored {
				return "", httpcache.ErrCASConflict
			}
			return "", err
		}
	} else {
		current, err := memcache.Get(s.Context, mkey)
		if err != nil {
			return "", httpcache.ErrCASConflict
		}
		current.Value = newData
		if err := memcache.CompareAndSwap(s.Context, current); err != nil {
			if err == memcache.ErrCASConflict || err == memcache.ErrNotStored {
				return "", httpcache.ErrCASConflict
			}
			return "", err
		}
	}

	stored, err := memcache.Get(s.Context, mkey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", stored.CasID), nil
}

// Delete removes the response with key from the cache.
func (s *Storage) Delete(_ context.Context, key string) error {
	if err := memcache.Delete(s.Context, storageKey(key)); err != nil {
		if err == memcache.ErrCacheMiss {
			return nil
		}
		s.Context.Errorf("error deleting cached response: %v", err)
		return err
	}
	return nil
}

// Keys is not supported by App Engine's memcache, which exposes no key
// enumeration API.
func (s *Storage) Keys(_ context.Context, _ string) ([]string, error) {
	return nil, fmt.Errorf("memcache: Keys is not supported")
}

// New returns a new Storage for the given context.
func New(ctx appengine.Context) *Storage {
	return &Storage{ctx}
}
