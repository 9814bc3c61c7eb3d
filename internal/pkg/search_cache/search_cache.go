package search_cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get on a cache miss.
var ErrNotFound = errors.New("search cache: key not found")

// SearchCache stores serialized search result sets for a bounded time.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// IsNotFoundError reports whether err is a plain cache miss as opposed
	// to a backend failure.
	IsNotFoundError(err error) bool
}
