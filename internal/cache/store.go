// Package cache keeps per-symbol incremental indicator state so a live
// tick can be scored in O(1) without reloading full price history. State
// lives in redis in production and in memory for tests; on a miss the
// snapshotter reseeds from batch history and keeps going.
package cache

import (
	"context"
	"time"

	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// DefaultStateTTL is how long a symbol's indicator state survives without
// being refreshed. A week covers holidays without serving stale state
// forever.
const DefaultStateTTL = 7 * 24 * time.Hour

// Store is the minimal key-value surface the cache layer needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. A missing or expired key returns an
	// error with ErrCodeCacheMiss; use IsMiss to branch on it.
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IsMiss reports whether err is a cache miss. A miss is an expected
// outcome, not a failure.
func IsMiss(err error) bool {
	return errors.HasCode(err, errors.ErrCodeCacheMiss)
}
