// Package mongodb provides an httpcache.Storage backed by MongoDB. Compare-
// and-set is implemented with a version field and FindOneAndUpdate filtered
// on the expected version.
package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandrolain/httpcache"
)

// Config holds the configuration for creating a MongoDB storage.
type Config struct {
	// URI is the MongoDB connection URI (e.g., "mongodb://localhost:27017").
	// Required field.
	URI string

	// Database is the name of the database to use for caching.
	// Required field.
	Database string

	// Collection is the name of the collection to use for caching.
	// Optional - defaults to "httpcache".
	Collection string

	// KeyPrefix is a prefix to add to all cache keys.
	// Optional - defaults to "cache:".
	KeyPrefix string

	// Timeout is the timeout for database operations.
	// Optional - defaults to 5 seconds.
	Timeout time.Duration

	// TTL is the time-to-live for cache entries.
	// Optional - if set, creates a TTL index on the createdAt field.
	TTL time.Duration

	// ClientOptions are additional options to pass to mongo.Connect.
	// Optional.
	ClientOptions *options.ClientOptions
}

// storedEntry represents a storage entry in MongoDB.
type storedEntry struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"createdAt"`
}

// storage is an implementation of httpcache.Storage backed by MongoDB.
type storage struct {
	client     *mongo.Client
	collection *mongo.Collection
	keyPrefix  string
	timeout    time.Duration
}

func (s storage) cacheKey(key string) string {
	return s.keyPrefix + key
}

func (s storage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entry storedEntry
	err := s.collection.FindOne(ctx, bson.M{"_id": s.cacheKey(key)}).Decode(&entry)
	if err == mongo.ErrNoDocuments {
		return httpcache.StoredEntry{}, httpcache.ErrNotFound
	}
	if err != nil {
		return httpcache.StoredEntry{}, fmt.Errorf("mongodb load failed for key %q: %w", key, err)
	}

	return httpcache.StoredEntry{Data: entry.Data, Version: strconv.FormatInt(entry.Version, 10)}, nil
}

func (s storage) Store(ctx context.Context, key string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var existing storedEntry
	err := s.collection.FindOne(ctx, bson.M{"_id": s.cacheKey(key)}).Decode(&existing)
	var version int64
	if err == nil {
		version = existing.Version + 1
	} else if err != mongo.ErrNoDocuments {
		return "", fmt.Errorf("mongodb store failed for key %q: %w", key, err)
	}

	entry := storedEntry{
		Key:       s.cacheKey(key),
		Data:      data,
		Version:   version,
		CreatedAt: time.Now(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": entry.Key}, entry, opts); err != nil {
		return "", fmt.Errorf("mongodb store failed for key %q: %w", key, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (s storage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id := s.cacheKey(key)

	if oldVersion == "" {
		entry := storedEntry{Key: id, Data: newData, Version: 0, CreatedAt: time.Now()}
		_, err := s.collection.InsertOne(ctx, entry)
		if mongo.IsDuplicateKeyError(err) {
			return "", httpcache.ErrCASConflict
		}
		if err != nil {
			return "", fmt.Errorf("mongodb update failed for key %q: %w", key, err)
		}
		return "0", nil
	}

	wantVersion, err := strconv.ParseInt(oldVersion, 10, 64)
	if err != nil {
		return "", httpcache.ErrCASConflict
	}

	newVersion := wantVersion + 1
	filter := bson.M{"_id": id, "version": wantVersion}
	update := bson.M{"$set": bson.M{"data": newData, "version": newVersion, "createdAt": time.Now()}}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return "", fmt.Errorf("mongodb update failed for key %q: %w", key, err)
	}
	if result.MatchedCount == 0 {
		return "", httpcache.ErrCASConflict
	}
	return strconv.FormatInt(newVersion, 10), nil
}

func (s storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": s.cacheKey(key)}); err != nil {
		return fmt.Errorf("mongodb delete failed for key %q: %w", key, err)
	}
	return nil
}

func (s storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	regex := "^" + regexp.QuoteMeta(s.cacheKey(prefix))
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$regex": regex}})
	if err != nil {
		return nil, fmt.Errorf("mongodb keys scan failed: %w", err)
	}
	defer cursor.Close(ctx)

	var keys []string
	for cursor.Next(ctx) {
		var entry storedEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("mongodb keys scan failed: %w", err)
		}
		keys = append(keys, entry.Key[len(s.keyPrefix):])
	}
	return keys, cursor.Err()
}

// Close disconnects from MongoDB. Storage instances created with
// NewWithClient do not own the client and leave it connected.
func (s storage) Close() error {
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.client.Disconnect(ctx)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Collection: "httpcache",
		KeyPrefix:  "cache:",
		Timeout:    5 * time.Second,
	}
}

// New creates a new Storage with the given configuration. It establishes a
// connection to MongoDB and creates the necessary indexes. The caller should
// call Close() when done.
func New(ctx context.Context, config Config) (httpcache.Storage, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("MongoDB URI is required")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if config.Collection == "" {
		config.Collection = DefaultConfig().Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	if config.ClientOptions != nil {
		clientOpts = config.ClientOptions.ApplyURI(config.URI)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, config.Timeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
			httpcache.GetLogger().Warn("failed to disconnect client after ping error", "error", disconnectErr)
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)

	s := storage{
		client:     client,
		collection: collection,
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}

	if config.TTL > 0 {
		if err := s.createTTLIndex(ctx, config.TTL); err != nil {
			if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
				httpcache.GetLogger().Warn("failed to disconnect client after TTL index error", "error", disconnectErr)
			}
			return nil, fmt.Errorf("failed to create TTL index: %w", err)
		}
	}

	return s, nil
}

// NewWithClient returns a new Storage with the given MongoDB client. The
// returned storage will not close the client when Close() is called.
func NewWithClient(client *mongo.Client, database, collection string, config Config) (httpcache.Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("MongoDB client is required")
	}
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if collection == "" {
		collection = DefaultConfig().Collection
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return storage{
		client:     nil,
		collection: client.Database(database).Collection(collection),
		keyPrefix:  config.KeyPrefix,
		timeout:    config.Timeout,
	}, nil
}

// createTTLIndex creates a TTL index on the createdAt field.
func (s storage) createTTLIndex(ctx context.Context, ttl time.Duration) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().
			SetExpireAfterSeconds(int32(ttl.Seconds())).
			SetName("httpcache_ttl"),
	}

	indexCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateOne(indexCtx, indexModel)
	return err
}
