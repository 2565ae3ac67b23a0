package httpcache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Storage.Load when no entry exists for a key.
var ErrNotFound = errors.New("httpcache: entry not found")

// ErrCASConflict is returned by Storage.Update when old does not match the
// currently stored value, signaling the caller should re-read and retry.
var ErrCASConflict = errors.New("httpcache: compare-and-set conflict")

// StoredEntry is the wire representation a Storage implementation persists:
// an encoded CacheEntry plus an opaque version token used for optimistic
// concurrency. Implementations that have no native CAS primitive may ignore
// Version and guard Update with a mutex instead.
type StoredEntry struct {
	Data    []byte
	Version string
}

// Storage is the persistence abstraction spec.md Section 2 names: a
// key-value store of encoded CacheEntry bytes with compare-and-set update
// semantics, so EntryUpdater can merge a 304 response into a stored entry
// without clobbering a concurrent writer.
//
// Implementations live under storage/ (one subpackage per backend) and are
// independent of any particular encoding; codec.go supplies the default
// CacheEntry<->[]byte encoding used by CachingExecutor.
type Storage interface {
	// Load returns the current stored bytes and version for key, or
	// ErrNotFound if no entry exists.
	Load(ctx context.Context, key string) (StoredEntry, error)

	// Store unconditionally writes data for key, replacing any existing
	// entry, and returns the new version.
	Store(ctx context.Context, key string, data []byte) (version string, err error)

	// Update performs a compare-and-set: it replaces key's value with
	// newData only if the currently stored version still equals
	// oldVersion, returning ErrCASConflict otherwise. Passing an empty
	// oldVersion requires the key to not currently exist.
	Update(ctx context.Context, key string, oldVersion string, newData []byte) (version string, err error)

	// Delete removes key, if present. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key whose value begins with prefix, for
	// Invalidator's secondary-key sweep (spec.md Section 4.9). A backend
	// that cannot enumerate efficiently may return a keyspace snapshot
	// and let the caller filter.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// casRetry runs update, retrying up to cfg.CASRetries times on
// ErrCASConflict by re-reading the current entry via reload between
// attempts. mutate receives the freshly loaded bytes (or nil if absent) and
// returns the new bytes to store, or ok=false to abandon the update.
func casRetry(ctx context.Context, s Storage, key string, cfg CacheConfig, mutate func(current []byte, version string) (data []byte, ok bool, err error)) error {
	attempts := cfg.CASRetries
	if attempts <= 0 {
		attempts = 1
	}

	current, err := s.Load(ctx, key)
	loaded := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	for i := 0; i < attempts; i++ {
		var data []byte
		var version string
		if loaded {
			data, version = current.Data, current.Version
		}
		newData, ok, err := mutate(data, version)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		_, err = s.Update(ctx, key, version, newData)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCASConflict) {
			return err
		}
		current, err = s.Load(ctx, key)
		loaded = err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return ErrCASConflict
}
