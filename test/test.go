// Package test provides a shared conformance suite for httpcache.Storage
// implementations, exercised by every storage/* backend package.
package test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sandrolain/httpcache"
)

// Storage exercises an httpcache.Storage implementation's Load/Store/Update/
// Delete/Keys contract.
func Storage(t *testing.T, s httpcache.Storage) {
	t.Helper()
	ctx := context.Background()
	key := "testKey"

	_, err := s.Load(ctx, key)
	if !errors.Is(err, httpcache.ErrNotFound) {
		t.Fatalf("Load on absent key: got err %v, want ErrNotFound", err)
	}

	val := []byte("some bytes")
	version, err := s.Store(ctx, key, val)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	stored, err := s.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load after Store: %v", err)
	}
	if !bytes.Equal(stored.Data, val) {
		t.Fatal("Load returned different bytes than Store wrote")
	}
	if stored.Version != version {
		t.Fatalf("Load version %q != Store version %q", stored.Version, version)
	}

	if _, err := s.Update(ctx, key, "wrong-version", []byte("clobbered")); !errors.Is(err, httpcache.ErrCASConflict) {
		t.Fatalf("Update with stale version: got err %v, want ErrCASConflict", err)
	}

	newVal := []byte("updated bytes")
	newVersion, err := s.Update(ctx, key, stored.Version, newVal)
	if err != nil {
		t.Fatalf("Update with current version: %v", err)
	}
	if newVersion == stored.Version {
		t.Fatal("Update did not advance the version")
	}

	stored, err = s.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load after Update: %v", err)
	}
	if !bytes.Equal(stored.Data, newVal) {
		t.Fatal("Load returned stale bytes after Update")
	}

	keys, err := s.Keys(ctx, "testK")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !containsString(keys, key) {
		t.Fatalf("Keys(%q) = %v, want it to contain %q", "testK", keys, key)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, key); !errors.Is(err, httpcache.ErrNotFound) {
		t.Fatalf("Load after Delete: got err %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete of already-absent key should be a no-op, got: %v", err)
	}
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
