// Package leveldbcache provides an httpcache.Storage backed by
// github.com/syndtr/goleveldb/leveldb. LevelDB has no native compare-and-set
// primitive, so Update is guarded by an in-process mutex; this is safe for
// the single-process use LevelDB is suited for.
package leveldbcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"

	"github.com/sandrolain/httpcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Storage implements httpcache.Storage with leveldb storage. Each stored
// value is prefixed with an 8-byte big-endian version counter so Load can
// report a version without a second key lookup.
type Storage struct {
	mu sync.Mutex
	db *leveldb.DB
}

// New returns a new Storage that stores leveldb data in path.
func New(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// NewWithDB returns a new Storage using the provided leveldb as underlying
// database.
func NewWithDB(db *leveldb.DB) *Storage {
	return &Storage{db: db}
}

// Close releases the underlying database handle.
func (s *Storage) Close() error { return s.db.Close() }

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

func (s *Storage) Load(_ context.Context, key string) (httpcache.StoredEntry, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	if err != nil {
		return httpcache.StoredEntry{}, fmt.Errorf("leveldb load failed for key %q: %w", key, err)
	}
	version, data := decode(raw)
	return httpcache.StoredEntry{Data: data, Version: strconv.FormatUint(version, 10)}, nil
}

func (s *Storage) Store(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.db.Get([]byte(key), nil)
	var version uint64
	if err == nil {
		v, _ := decode(current)
		version = v + 1
	}
	if err := s.db.Put([]byte(key), encode(version, data), nil); err != nil {
		return "", fmt.Errorf("leveldb store failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(version, 10), nil
}

func (s *Storage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.db.Get([]byte(key), nil)
	var currentVersion uint64
	exists := err == nil
	if exists {
		currentVersion, _ = decode(raw)
	} else if err != leveldb.ErrNotFound {
		return "", fmt.Errorf("leveldb update failed for key %q: %w", key, err)
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
	if err := s.db.Put([]byte(key), encode(newVersion, newData), nil); err != nil {
		return "", fmt.Errorf("leveldb update failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(newVersion, 10), nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete failed for key %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Keys(_ context.Context, prefix string) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb keys scan failed: %w", err)
	}
	return keys, nil
}
