package domain

import (
	"context"
	"time"
)

// StoreEntry is a single key/value write with its own TTL.
type StoreEntry struct {
	Key   string
	Value string
	TTL   time.Duration
}

// KeyValueStore is the shared cache that every service instance consults for
// session liveness and ephemeral key storage. Presence of a session token
// under its key is the proof of validity; absence is revocation.
// Implementations live in internal/core/repository (Core layer).
type KeyValueStore interface {
	// SetWithTTL stores value under key, replacing any prior value.
	// TTL precision is milliseconds.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetManyWithTTL writes all entries or none.
	SetManyWithTTL(ctx context.Context, entries ...StoreEntry) error

	// Get returns the value stored under key.
	// Returns ("", false, nil) when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes the given keys. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error

	// Exists reports whether key is currently present.
	Exists(ctx context.Context, key string) (bool, error)
}

// Key naming shared by every instance using the same store.
const (
	AccessTokenKeyPrefix   = "access_token:"
	RefreshTokenKeyPrefix  = "refresh_token:"
	EncryptionKeyKeyPrefix = "encryption_key:"
)

// SessionKey returns the store key holding the live token of the given class
// for userID.
func SessionKey(tokenType TokenType, userID string) string {
	if tokenType == TokenTypeRefresh {
		return RefreshTokenKeyPrefix + userID
	}
	return AccessTokenKeyPrefix + userID
}

// EncryptionKeyKey returns the store key holding the ephemeral key keyID.
func EncryptionKeyKey(keyID string) string {
	return EncryptionKeyKeyPrefix + keyID
}
