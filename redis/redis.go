// Package redis provides an httpcache.Storage backed by Redis, using
// go-redis/v9 and a Lua script for the compare-and-set primitive
// httpcache.Storage.Update requires.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sandrolain/httpcache"
)

// Config holds the configuration for creating a Redis-backed Storage.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	Address string

	// Password is the Redis password for authentication. Optional.
	Password string

	// DB is the Redis database number to use. Optional - defaults to 0.
	DB int

	// KeyPrefix is prepended to every key, to avoid collision with other
	// data stored in the same Redis instance. Default: "httpcache:".
	KeyPrefix string

	// DialTimeout, ReadTimeout, WriteTimeout bound the respective Redis
	// operations. Optional - default to go-redis's own defaults when zero.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// casScript atomically replaces key's value only if its current value
// equals oldVersion (stored as a companion ":v" key holding the version),
// returning the new version on success or 0 on conflict. Redis has no
// built-in optimistic-CAS command, so the check-and-set must happen inside
// a single EVAL to stay atomic across the value and the version counter.
const casScript = `
local dataKey = KEYS[1]
local verKey = KEYS[2]
local oldVersion = ARGV[1]
local newData = ARGV[2]
local current = redis.call("GET", verKey)
if (current == false and oldVersion ~= "") or (current ~= false and current ~= oldVersion) then
  return {0, current or false}
end
local newVersion = redis.call("INCR", "httpcache:version-seq")
redis.call("SET", dataKey, newData)
redis.call("SET", verKey, newVersion)
return {1, newVersion}
`

// storage implements httpcache.Storage using a Redis client.
type storage struct {
	client    *goredis.Client
	keyPrefix string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{KeyPrefix: "httpcache:"}
}

// New creates a new Storage backed by a freshly dialed Redis client.
func New(ctx context.Context, config Config) (httpcache.Storage, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config.KeyPrefix), nil
}

// NewWithClient builds a Storage around an already-configured go-redis
// client, for callers that want to manage connection lifecycle themselves.
func NewWithClient(client *goredis.Client, keyPrefix string) httpcache.Storage {
	if keyPrefix == "" {
		keyPrefix = DefaultConfig().KeyPrefix
	}
	return &storage{client: client, keyPrefix: keyPrefix}
}

func (s *storage) dataKey(key string) string { return s.keyPrefix + key }
func (s *storage) verKey(key string) string  { return s.keyPrefix + key + ":v" }

func (s *storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	pipe := s.client.TxPipeline()
	dataCmd := pipe.Get(ctx, s.dataKey(key))
	verCmd := pipe.Get(ctx, s.verKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return httpcache.StoredEntry{}, fmt.Errorf("redis load failed for key %q: %w", key, err)
	}

	data, err := dataCmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	if err != nil {
		return httpcache.StoredEntry{}, fmt.Errorf("redis load failed for key %q: %w", key, err)
	}
	version, _ := verCmd.Result()
	return httpcache.StoredEntry{Data: data, Version: version}, nil
}

func (s *storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	version, err := s.client.Incr(ctx, "httpcache:version-seq").Result()
	if err != nil {
		return "", fmt.Errorf("redis store failed for key %q: %w", key, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, 0)
	pipe.Set(ctx, s.verKey(key), version, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis store failed for key %q: %w", key, err)
	}
	return fmt.Sprintf("%d", version), nil
}

func (s *storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	res, err := s.client.Eval(ctx, casScript, []string{s.dataKey(key), s.verKey(key)}, oldVersion, newData).Result()
	if err != nil {
		return "", fmt.Errorf("redis update failed for key %q: %w", key, err)
	}
	fields, ok := res.([]interface{})
	if !ok || len(fields) != 2 {
		return "", fmt.Errorf("redis update returned unexpected shape for key %q", key)
	}
	ok1, _ := fields[0].(int64)
	if ok1 != 1 {
		return "", httpcache.ErrCASConflict
	}
	return fmt.Sprintf("%v", fields[1]), nil
}

func (s *storage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.dataKey(key), s.verKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed for key %q: %w", key, err)
	}
	return nil
}

func (s *storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if len(k) > len(s.keyPrefix) && k[len(k)-2:] != ":v" {
			keys = append(keys, k[len(s.keyPrefix):])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis keys scan failed: %w", err)
	}
	return keys, nil
}

// Close releases the underlying Redis client.
func (s *storage) Close() error { return s.client.Close() }
