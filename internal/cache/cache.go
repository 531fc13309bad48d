package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache defines the interface for a caching implementation
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache
	Delete(ctx context.Context, key string) error

	// Append pushes value onto the end of the list at key
	Append(ctx context.Context, key string, value []byte) error

	// List returns the list at key, oldest first
	List(ctx context.Context, key string) ([][]byte, error)

	// TakeList returns the list at key and removes it atomically
	TakeList(ctx context.Context, key string) ([][]byte, error)

	// Ping tests the connection to the cache
	Ping(ctx context.Context) error

	// Close releases resources used by the cache
	Close() error
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = fmt.Errorf("cache miss")
