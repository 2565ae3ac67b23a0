package leveldbcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sandrolain/httpcache/test"
)

func TestLevelDBStorage(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "httpcache")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	storage, err := New(filepath.Join(tempDir, "db"))
	if err != nil {
		t.Fatalf("New leveldb: %v", err)
	}
	defer storage.Close()

	test.Storage(t, storage)
}
