// Package storage holds the durable key-value slots the cart store persists
// region carts into.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Storage is a durable key-value store. Values are opaque UTF-8 JSON blobs.
// Get returns ErrNotFound when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
