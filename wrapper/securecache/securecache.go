// Package securecache provides a security wrapper for httpcache.Storage implementations.
// It adds SHA-256 key hashing (always enabled) and optional AES-256-GCM encryption for cached data.
package securecache

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sandrolain/httpcache"
	"golang.org/x/crypto/scrypt"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation
	scryptN = 32768
	// scryptR is the block size parameter for scrypt
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt
	scryptP = 1
	// keyLength is the desired key length for AES-256
	keyLength = 32
	// nonceSize is the size of the GCM nonce
	nonceSize = 12
)

// SecureStorage wraps an existing httpcache.Storage to add security features:
// - SHA-256 hashing of all storage keys (always enabled)
// - Optional AES-256-GCM encryption of stored data (when passphrase is provided)
type SecureStorage struct {
	storage    httpcache.Storage
	gcm        cipher.AEAD
	passphrase string
}

// Config holds the configuration for creating a SecureStorage.
type Config struct {
	// Storage is the underlying storage implementation to wrap.
	Storage httpcache.Storage

	// Passphrase is the secret used to encrypt/decrypt cached data.
	// If empty, only key hashing is performed (no encryption).
	// Must be kept secret and consistent across application restarts.
	Passphrase string
}

// New creates a new SecureStorage that wraps the provided storage.
// Keys are always hashed with SHA-256.
// If a passphrase is provided, stored data is encrypted with AES-256-GCM.
func New(config Config) (*SecureStorage, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}

	ss := &SecureStorage{
		storage:    config.Storage,
		passphrase: config.Passphrase,
	}

	if config.Passphrase != "" {
		if err := ss.initEncryption(); err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	return ss, nil
}

// initEncryption initializes the AES-256-GCM cipher using the passphrase.
func (ss *SecureStorage) initEncryption() error {
	// Derive a 32-byte key from the passphrase using scrypt
	// Using a fixed salt here - in production, consider storing a random salt
	salt := sha256.Sum256([]byte("httpcache-securecache-salt-v1"))
	key, err := scrypt.Key([]byte(ss.passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	ss.gcm = gcm
	return nil
}

// hashKey converts a storage key to its SHA-256 hash representation.
func (ss *SecureStorage) hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// encrypt encrypts data using AES-256-GCM.
// Returns the encrypted data with the nonce prepended.
func (ss *SecureStorage) encrypt(data []byte) ([]byte, error) {
	if ss.gcm == nil {
		return data, nil // No encryption configured
	}

	nonce := make([]byte, ss.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// #nosec G407 -- nonce is randomly generated above using crypto/rand, not hardcoded
	ciphertext := ss.gcm.Seal(nonce, nonce, data, nil)
	return ciphertext, nil
}

// decrypt decrypts data using AES-256-GCM.
// Expects the nonce to be prepended to the ciphertext.
func (ss *SecureStorage) decrypt(data []byte) ([]byte, error) {
	if ss.gcm == nil {
		return data, nil // No decryption needed
	}

	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := data[:nonceSize]
	ciphertext := data[nonceSize:]

	plaintext, err := ss.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// Load retrieves a stored entry. The key is hashed with SHA-256 before
// lookup, and the data is decrypted if encryption is enabled. The reported
// version is the wrapped storage's version of the hashed key, opaque to the
// caller like any other version token.
func (ss *SecureStorage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	hashedKey := ss.hashKey(key)
	entry, err := ss.storage.Load(ctx, hashedKey)
	if err != nil {
		return httpcache.StoredEntry{}, err
	}

	if ss.gcm != nil {
		plaintext, err := ss.decrypt(entry.Data)
		if err != nil {
			httpcache.GetLogger().Warn("failed to decrypt cached data", "key", hashedKey, "error", err)
			return httpcache.StoredEntry{}, err
		}
		entry.Data = plaintext
	}

	return entry, nil
}

// Store writes a response to the storage. The key is hashed with SHA-256
// before storage, and the data is encrypted if encryption is enabled.
func (ss *SecureStorage) Store(ctx context.Context, key string, data []byte) (string, error) {
	hashedKey := ss.hashKey(key)

	toStore, err := ss.encryptForStorage(hashedKey, data)
	if err != nil {
		return "", err
	}

	return ss.storage.Store(ctx, hashedKey, toStore)
}

// Update conditionally writes a response to the storage, following the same
// key-hashing and encryption as Store.
func (ss *SecureStorage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	hashedKey := ss.hashKey(key)

	toStore, err := ss.encryptForStorage(hashedKey, newData)
	if err != nil {
		return "", err
	}

	return ss.storage.Update(ctx, hashedKey, oldVersion, toStore)
}

func (ss *SecureStorage) encryptForStorage(hashedKey string, data []byte) ([]byte, error) {
	if ss.gcm == nil {
		return data, nil
	}
	encrypted, err := ss.encrypt(data)
	if err != nil {
		httpcache.GetLogger().Warn("failed to encrypt data", "key", hashedKey, "error", err)
		return nil, err
	}
	return encrypted, nil
}

// Delete removes a response from the storage. The key is hashed with
// SHA-256 before deletion.
func (ss *SecureStorage) Delete(ctx context.Context, key string) error {
	return ss.storage.Delete(ctx, ss.hashKey(key))
}

// Keys is not supported: hashing keys before storage destroys the prefix
// relationships a caller would search on.
func (ss *SecureStorage) Keys(_ context.Context, _ string) ([]string, error) {
	return nil, fmt.Errorf("securecache: Keys is not supported, keys are stored hashed")
}

// IsEncrypted returns true if the storage is configured with encryption.
func (ss *SecureStorage) IsEncrypted() bool {
	return ss.gcm != nil
}
