//go:build integration
// +build integration

package hazelcast

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hazelcast/hazelcast-go-client"
	"github.com/sandrolain/httpcache"
	"github.com/sandrolain/httpcache/test"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	skipIntegrationMsg = "skipping integration test; use -integration.hazelcast flag to enable"
	hazelcastImage     = "hazelcast/hazelcast:5.6"
	failedConnectMsg   = "failed to connect to Hazelcast: %v"
	failedSetupMsg     = "failed to setup Hazelcast map: %v"
)

var (
	// Global Hazelcast container and endpoint shared across all tests.
	sharedHazelcastContainer testcontainers.Container
	sharedHazelcastEndpoint  string
)

// TestMain sets up the Hazelcast container once for all tests.
func TestMain(m *testing.M) {
	flag.Parse()

	var code int

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        hazelcastImage,
		ExposedPorts: []string{"5701/tcp"},
		Env: map[string]string{
			"HZ_NETWORK_PUBLICADDRESS": "127.0.0.1:5701",
		},
		WaitingFor: wait.ForLog("is STARTED").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		panic("failed to start Hazelcast container: " + err.Error())
	}
	sharedHazelcastContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get Hazelcast host: " + err.Error())
	}

	port, err := container.MappedPort(ctx, "5701")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get Hazelcast port: " + err.Error())
	}

	sharedHazelcastEndpoint = fmt.Sprintf("%s:%s", host, port.Port())

	time.Sleep(5 * time.Second)

	code = m.Run()

	if err := testcontainers.TerminateContainer(container); err != nil {
		panic("failed to terminate Hazelcast container: " + err.Error())
	}

	os.Exit(code)
}

// setupHazelcastIntegrationStorage creates a new connection to the shared Hazelcast container and returns the storage instance.
func setupHazelcastIntegrationStorage(t *testing.T) (storage, func()) {
	t.Helper()

	ctx := context.Background()

	config := hazelcast.Config{}
	config.Cluster.Network.SetAddresses(sharedHazelcastEndpoint)
	config.Cluster.Unisocket = true

	client, err := hazelcast.StartNewClientWithConfig(ctx, config)
	if err != nil {
		t.Fatalf(failedConnectMsg, err)
	}

	m, err := client.GetMap(ctx, "test-cache")
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = client.Shutdown(shutdownCtx)
		cancel()
		t.Fatalf(failedSetupMsg, err)
	}

	if err := m.Clear(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = client.Shutdown(shutdownCtx)
		cancel()
		t.Fatalf("failed to clear Hazelcast map: %v", err)
	}

	cleanup := func() {
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = m.Clear(clearCtx)
		clearCancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = client.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return NewWithMap(m).(storage), cleanup
}

// verifyMultipleKeys verifies that all keys have the expected values.
func verifyMultipleKeys(t *testing.T, s storage, keys []string, values [][]byte) {
	t.Helper()
	ctx := context.Background()
	for i, key := range keys {
		entry, err := s.Load(ctx, key)
		if err != nil {
			t.Errorf("expected key %s to exist: %v", key, err)
			continue
		}
		if string(entry.Data) != string(values[i]) {
			t.Errorf("expected value %s, got %s", values[i], entry.Data)
		}
	}
}

// verifyKeyExists verifies that a key exists.
func verifyKeyExists(t *testing.T, s storage, key string, shouldExist bool) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Load(ctx, key)
	exists := err == nil
	if exists != shouldExist {
		if shouldExist {
			t.Errorf("expected key %s to exist", key)
		} else {
			t.Errorf("expected key %s to not exist", key)
		}
	}
}

// TestHazelcastStorageIntegration tests the Hazelcast storage implementation using a real Hazelcast instance via testcontainers.
func TestHazelcastStorageIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	s, cleanup := setupHazelcastIntegrationStorage(t)
	defer cleanup()

	test.Storage(t, s)
}

// TestHazelcastStorageIntegrationMultipleOperations tests multiple storage operations in sequence.
func TestHazelcastStorageIntegrationMultipleOperations(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	s, cleanup := setupHazelcastIntegrationStorage(t)
	defer cleanup()

	ctx := context.Background()
	keys := []string{"key1", "key2", "key3"}
	values := [][]byte{[]byte("value1"), []byte("value2"), []byte("value3")}

	for i, key := range keys {
		if _, err := s.Store(ctx, key, values[i]); err != nil {
			t.Fatalf("failed to store key %s: %v", key, err)
		}
	}

	verifyMultipleKeys(t, s, keys, values)

	if err := s.Delete(ctx, keys[1]); err != nil {
		t.Fatalf("failed to delete key %s: %v", keys[1], err)
	}

	verifyKeyExists(t, s, keys[1], false)
	verifyKeyExists(t, s, keys[0], true)
	verifyKeyExists(t, s, keys[2], true)
}

// TestHazelcastStorageIntegrationPersistence tests that values persist across retrievals.
func TestHazelcastStorageIntegrationPersistence(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	s, cleanup := setupHazelcastIntegrationStorage(t)
	defer cleanup()

	ctx := context.Background()
	key := "persistentKey"
	value := []byte("persistentValue")
	if _, err := s.Store(ctx, key, value); err != nil {
		t.Fatalf("failed to store key: %v", err)
	}

	for i := 0; i < 5; i++ {
		entry, err := s.Load(ctx, key)
		if err != nil {
			t.Errorf("iteration %d: expected key to exist: %v", i, err)
			continue
		}
		if string(entry.Data) != string(value) {
			t.Errorf("iteration %d: expected value %s, got %s", i, value, entry.Data)
		}
	}
}

// TestHazelcastStorageIntegrationWithContext tests storage with custom context.
func TestHazelcastStorageIntegrationWithContext(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationMsg)
	}

	ctx := context.Background()

	config := hazelcast.Config{}
	config.Cluster.Network.SetAddresses(sharedHazelcastEndpoint)
	config.Cluster.Unisocket = true

	client, err := hazelcast.StartNewClientWithConfig(ctx, config)
	if err != nil {
		t.Fatalf(failedConnectMsg, err)
	}

	m, err := client.GetMap(ctx, "test-cache-ctx")
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = client.Shutdown(shutdownCtx)
		cancel()
		t.Fatalf(failedSetupMsg, err)
	}

	if err := m.Clear(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = client.Shutdown(shutdownCtx)
		cancel()
		t.Fatalf("failed to clear Hazelcast map: %v", err)
	}

	customCtx := context.Background()
	var s httpcache.Storage = NewWithMapAndContext(customCtx, m)

	key := "testKey"
	value := []byte("testValue")

	if _, err := s.Store(ctx, key, value); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	entry, err := s.Load(ctx, key)
	if err != nil {
		t.Fatalf("expected key to exist: %v", err)
	}
	if string(entry.Data) != string(value) {
		t.Errorf("expected value %s, got %s", value, entry.Data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	if _, err := s.Load(ctx, key); err == nil {
		t.Error("expected key to not exist after delete")
	}

	clearCtx, clearCancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = m.Clear(clearCtx)
	clearCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = client.Shutdown(shutdownCtx)
	shutdownCancel()
}
