// Package postgresql provides an httpcache.Storage backed by PostgreSQL via
// jackc/pgx/v5. Compare-and-set is implemented with a version column and a
// conditional UPDATE ... WHERE version = $old.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sandrolain/httpcache"
)

var (
	// ErrNilPool is returned when a nil pool is provided.
	ErrNilPool = errors.New("postgresql: pool cannot be nil")
	// ErrNilConn is returned when a nil connection is provided.
	ErrNilConn = errors.New("postgresql: connection cannot be nil")
)

const (
	// DefaultTableName is the default table name for cache storage.
	DefaultTableName = "httpcache"
	// DefaultKeyPrefix is the default prefix for cache keys.
	DefaultKeyPrefix = "cache:"
)

// querier is satisfied by both *pgxpool.Pool and *pgx.Conn.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is an implementation of httpcache.Storage that stores responses in
// PostgreSQL.
type Storage struct {
	q         querier
	closer    func()
	tableName string
	keyPrefix string
	timeout   time.Duration
}

// Config holds the configuration for the PostgreSQL storage.
type Config struct {
	// TableName is the name of the table to store cache entries (default: "httpcache").
	TableName string
	// KeyPrefix is the prefix to add to all cache keys (default: "cache:").
	KeyPrefix string
	// Timeout is the maximum time to wait for database operations (default: 5s).
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TableName: DefaultTableName,
		KeyPrefix: DefaultKeyPrefix,
		Timeout:   5 * time.Second,
	}
}

func (s *Storage) cacheKey(key string) string {
	return s.keyPrefix + key
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var data []byte
	var version int64
	query := `SELECT data, version FROM ` + s.tableName + ` WHERE key = $1`
	err := s.q.QueryRow(ctx, query, s.cacheKey(key)).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httpcache.StoredEntry{}, httpcache.ErrNotFound
		}
		return httpcache.StoredEntry{}, fmt.Errorf("postgresql load failed for key %q: %w", key, err)
	}
	return httpcache.StoredEntry{Data: data, Version: strconv.FormatInt(version, 10)}, nil
}

func (s *Storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO ` + s.tableName + ` (key, data, version, created_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (key) DO UPDATE SET data = $2, version = ` + s.tableName + `.version + 1, created_at = $3
		RETURNING version
	`
	var version int64
	if err := s.q.QueryRow(ctx, query, s.cacheKey(key), data, time.Now()).Scan(&version); err != nil {
		return "", fmt.Errorf("postgresql store failed for key %q: %w", key, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (s *Storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if oldVersion == "" {
		query := `
			INSERT INTO ` + s.tableName + ` (key, data, version, created_at)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (key) DO NOTHING
		`
		tag, err := s.q.Exec(ctx, query, s.cacheKey(key), newData, time.Now())
		if err != nil {
			return "", fmt.Errorf("postgresql update failed for key %q: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return "", httpcache.ErrCASConflict
		}
		return "0", nil
	}

	wantVersion, err := strconv.ParseInt(oldVersion, 10, 64)
	if err != nil {
		return "", httpcache.ErrCASConflict
	}

	query := `
		UPDATE ` + s.tableName + `
		SET data = $3, version = version + 1, created_at = $4
		WHERE key = $1 AND version = $2
	`
	tag, err := s.q.Exec(ctx, query, s.cacheKey(key), wantVersion, newData, time.Now())
	if err != nil {
		return "", fmt.Errorf("postgresql update failed for key %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return "", httpcache.ErrCASConflict
	}
	return strconv.FormatInt(wantVersion+1, 10), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM ` + s.tableName + ` WHERE key = $1`
	if _, err := s.q.Exec(ctx, query, s.cacheKey(key)); err != nil {
		return fmt.Errorf("postgresql delete failed for key %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT key FROM ` + s.tableName + ` WHERE key LIKE $1`
	rows, err := s.q.(interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	}).Query(ctx, query, s.cacheKey(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("postgresql keys scan failed: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgresql keys scan failed: %w", err)
		}
		keys = append(keys, key[len(s.keyPrefix):])
	}
	return keys, rows.Err()
}

// CreateTable creates the cache table if it doesn't exist.
func (s *Storage) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)
	`
	_, err := s.q.Exec(ctx, query)
	return err
}

// Close releases the connection pool or connection.
func (s *Storage) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// NewWithPool returns a new Storage using the provided connection pool.
func NewWithPool(pool *pgxpool.Pool, config *Config) (*Storage, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Storage{
		q:         pool,
		closer:    pool.Close,
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}, nil
}

// NewWithConn returns a new Storage using the provided connection.
func NewWithConn(conn *pgx.Conn, config *Config) (*Storage, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Storage{
		q:         conn,
		closer:    func() { _ = conn.Close(context.Background()) },
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}, nil
}

// New creates a new Storage with a connection pool from the given connection string.
func New(ctx context.Context, connString string, config *Config) (*Storage, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}

	s := &Storage{
		q:         pool,
		closer:    pool.Close,
		tableName: config.TableName,
		keyPrefix: config.KeyPrefix,
		timeout:   config.Timeout,
	}

	if err := s.CreateTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}
