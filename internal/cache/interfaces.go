package cache

import (
	"context"
	"time"
)

// Cache is a small key/value store holding the poll cursor and, optionally,
// uploaded media references. A ttl of zero or less means the entry
// never expires.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrSet retrieves a value or computes and stores it if missing.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context) error

	// Stats describes the cache for the admin endpoint.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close releases background workers and connections.
	Close() error
}

// CacheError is a sentinel error returned by Cache implementations.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
