package interfaces

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written
var ErrNotFound = errors.New("key not found")

// IdentityStore is the persistent string key/value store holding the device identifier
type IdentityStore interface {
	// Get returns the stored value or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value, replacing any previous one
	Set(ctx context.Context, key, value string) error

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend connection
	Close() error
}
