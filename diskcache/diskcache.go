// Package diskcache provides an httpcache.Storage that uses the diskv
// package to supplement an in-memory map with persistent on-disk storage.
package diskcache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv"
	"github.com/sandrolain/httpcache"
)

// Storage implements httpcache.Storage using diskv. diskv has no native
// compare-and-set primitive, so Update is guarded by an in-process mutex.
// Keys are hex-encoded (rather than hashed) before being handed to diskv so
// that a prefix search over storage keys can be answered without needing a
// separate index.
type Storage struct {
	mu sync.Mutex
	d  *diskv.Diskv
}

// New returns a new Storage that stores files under basePath.
func New(basePath string) *Storage {
	return &Storage{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			CacheSizeMax: 100 * 1024 * 1024,
		}),
	}
}

// NewWithDiskv returns a new Storage using the provided Diskv as underlying
// store.
func NewWithDiskv(d *diskv.Diskv) *Storage {
	return &Storage{d: d}
}

func keyToFilename(key string) string {
	return hex.EncodeToString([]byte(key))
}

func filenameToKey(name string) (string, bool) {
	b, err := hex.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func encode(version uint64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, version)
	copy(buf[8:], data)
	return buf
}

func decode(raw []byte) (uint64, []byte) {
	if len(raw) < 8 {
		return 0, raw
	}
	return binary.BigEndian.Uint64(raw), raw[8:]
}

func (s *Storage) Load(_ context.Context, key string) (httpcache.StoredEntry, error) {
	raw, err := s.d.Read(keyToFilename(key))
	if err != nil {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	version, data := decode(raw)
	return httpcache.StoredEntry{Data: data, Version: strconv.FormatUint(version, 10)}, nil
}

func (s *Storage) Store(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version uint64
	if current, err := s.d.Read(keyToFilename(key)); err == nil {
		v, _ := decode(current)
		version = v + 1
	}
	if err := s.d.WriteStream(keyToFilename(key), bytes.NewReader(encode(version, data)), true); err != nil {
		return "", fmt.Errorf("diskcache store failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(version, 10), nil
}

func (s *Storage) Update(_ context.Context, key, oldVersion string, newData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := keyToFilename(key)
	raw, err := s.d.Read(name)
	exists := err == nil
	var currentVersion uint64
	if exists {
		currentVersion, _ = decode(raw)
	}

	var wantVersion uint64
	if oldVersion == "" {
		if exists {
			return "", httpcache.ErrCASConflict
		}
	} else {
		v, parseErr := strconv.ParseUint(oldVersion, 10, 64)
		if parseErr != nil || !exists || v != currentVersion {
			return "", httpcache.ErrCASConflict
		}
		wantVersion = v
	}

	newVersion := wantVersion + 1
	if err := s.d.WriteStream(name, bytes.NewReader(encode(newVersion, newData)), true); err != nil {
		return "", fmt.Errorf("diskcache update failed for key %q: %w", key, err)
	}
	return strconv.FormatUint(newVersion, 10), nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	if err := s.d.Erase(keyToFilename(key)); err != nil {
		return nil //nolint:nilerr // erasing an absent key is not an error
	}
	return nil
}

func (s *Storage) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for name := range s.d.Keys(nil) {
		key, ok := filenameToKey(name)
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
