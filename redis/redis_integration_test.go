//go:build integration

package redis

import (
	"context"
	"flag"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sandrolain/httpcache/test"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

var sharedRedisEndpoint string

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, redisImage)
	if err != nil {
		panic("failed to start Redis container: " + err.Error())
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		panic("failed to get Redis endpoint: " + err.Error())
	}
	sharedRedisEndpoint = endpoint

	code := m.Run()

	if err := testcontainers.TerminateContainer(container); err != nil {
		panic("failed to terminate Redis container: " + err.Error())
	}
	os.Exit(code)
}

func TestRedisStorageIntegration(t *testing.T) {
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: sharedRedisEndpoint})
	defer client.Close()
	if err := client.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("failed to flush Redis: %v", err)
	}

	test.Storage(t, NewWithClient(client, "httpcache-test:"))
}

func TestRedisStorageNewIntegration(t *testing.T) {
	s, err := New(ctx(), Config{Address: sharedRedisEndpoint})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer s.(*storage).Close()

	test.Storage(t, s)
}

func TestRedisStorageNewWithEmptyAddress(t *testing.T) {
	if _, err := New(ctx(), Config{}); err == nil {
		t.Fatal("expected error with empty address")
	}
}

func ctx() context.Context { return context.Background() }
