// Package storage provides the key/value blob stores behind the headline
// caches. Every blob carries the time it was written; callers supply that
// time so staleness checks compare one clock.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has never been written or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat namespace of blobs addressed by slash-separated keys.
type Store interface {
	// Get returns the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, stamping it with at.
	Put(ctx context.Context, key string, data []byte, at time.Time) error
	// ModTime returns the stamp of the last Put for key.
	ModTime(ctx context.Context, key string) (time.Time, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ValidKey rejects keys that cannot be mapped onto every backend.
func ValidKey(key string) error {
	if key == "" {
		return errors.New("storage: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return errors.New("storage: key must not start or end with a slash")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.New("storage: invalid key segment in " + key)
		}
	}
	return nil
}
