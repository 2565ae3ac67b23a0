// Package hazelcast provides an httpcache.Storage backed by a Hazelcast
// cluster. Stored values are prefixed with an 8-byte big-endian version
// counter; Update uses the map's native ReplaceIfSame for atomic
// compare-and-set.
package hazelcast

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/hazelcast/hazelcast-go-client"
	"github.com/sandrolain/httpcache"
)

// storage is an implementation of httpcache.Storage that caches responses in
// a Hazelcast cluster.
type storage struct {
	m   *hazelcast.Map
	ctx context.Context
}

// storageKey modifies an httpcache key for use in Hazelcast. Specifically, it
// prefixes keys to avoid collision with other data stored in the map.
func storageKey(key string) string {
	return "httpcache:" + key
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

func (s storage) resolveCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return s.ctx
	}
	return ctx
}

func (s storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	ctx = s.resolveCtx(ctx)
	val, err := s.m.Get(ctx, storageKey(key))
	if err != nil {
		return httpcache.StoredEntry{}, fmt.Errorf("hazelcast load failed for key %q: %w", key, err)
	}
	if val == nil {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	raw, ok := val.([]byte)
	if !ok {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	version, data := decode(raw)
	return httpcache.StoredEntry{Data: data, Version: fmt.Sprintf("%d", version)}, nil
}

func (s storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	ctx = s.resolveCtx(ctx)

	var version uint64
	if val, err := s.m.Get(ctx, storageKey(key)); err == nil && val != nil {
		if raw, ok := val.([]byte); ok {
			v, _ := decode(raw)
			version = v + 1
		}
	}

	if err := s.m.Set(ctx, storageKey(key), encode(version, data)); err != nil {
		return "", fmt.Errorf("hazelcast store failed for key %q: %w", key, err)
	}
	return fmt.Sprintf("%d", version), nil
}

func (s storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	ctx = s.resolveCtx(ctx)
	mapKey := storageKey(key)

	if oldVersion == "" {
		ok, err := s.m.PutIfAbsent(ctx, mapKey, encode(0, newData))
		if err != nil {
			return "", fmt.Errorf("hazelcast update failed for key %q: %w", key, err)
		}
		if !ok {
			return "", httpcache.ErrCASConflict
		}
		return "0", nil
	}

	var wantVersion uint64
	if _, err := fmt.Sscanf(oldVersion, "%d", &wantVersion); err != nil {
		return "", httpcache.ErrCASConflict
	}

	val, err := s.m.Get(ctx, mapKey)
	if err != nil {
		return "", fmt.Errorf("hazelcast update failed for key %q: %w", key, err)
	}
	currentRaw, ok := val.([]byte)
	if val == nil || !ok {
		return "", httpcache.ErrCASConflict
	}
	currentVersion, _ := decode(currentRaw)
	if currentVersion != wantVersion {
		return "", httpcache.ErrCASConflict
	}

	newVersion := wantVersion + 1
	replaced, err := s.m.ReplaceIfSame(ctx, mapKey, currentRaw, encode(newVersion, newData))
	if err != nil {
		return "", fmt.Errorf("hazelcast update failed for key %q: %w", key, err)
	}
	if !replaced {
		return "", httpcache.ErrCASConflict
	}
	return fmt.Sprintf("%d", newVersion), nil
}

func (s storage) Delete(ctx context.Context, key string) error {
	ctx = s.resolveCtx(ctx)
	if _, err := s.m.Remove(ctx, storageKey(key)); err != nil {
		return fmt.Errorf("hazelcast delete failed for key %q: %w", key, err)
	}
	return nil
}

func (s storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx = s.resolveCtx(ctx)
	rawKeys, err := s.m.GetKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("hazelcast keys scan failed: %w", err)
	}

	const mapPrefix = "httpcache:"
	var keys []string
	for _, rk := range rawKeys {
		full, ok := rk.(string)
		if !ok || len(full) < len(mapPrefix) {
			continue
		}
		key := full[len(mapPrefix):]
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// NewWithMap returns a new Storage with the given Hazelcast map.
func NewWithMap(m *hazelcast.Map) httpcache.Storage {
	return storage{m: m, ctx: context.Background()}
}

// NewWithMapAndContext returns a new Storage with the given Hazelcast map and
// context. The provided context is used as a fallback; contexts passed to
// Load/Store/Update/Delete take precedence.
func NewWithMapAndContext(ctx context.Context, m *hazelcast.Map) httpcache.Storage {
	return storage{m: m, ctx: ctx}
}
