// Package kvstore provides the abstract key-value store backing the
// persisted session mirror. The store is deliberately dumb: it holds strings
// under keys and knows nothing about sessions or sentinels.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a minimal get/set/delete key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
