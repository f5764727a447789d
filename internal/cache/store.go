// Package cache provides the key-value store used to avoid redundant
// simplification and synthesis work across runs.
package cache

import (
	"context"
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	// Callers are expected to fail open: treat the lookup as a miss,
	// compute live, and surface a warning.
	ErrUnavailable = errors.New("cache store unavailable")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("cache store closed")
)

// Key prefixes separating the two cache namespaces. Paragraph
// simplifications and segment audio references share one store but
// never collide.
const (
	ParagraphPrefix = "p:"
	SegmentPrefix   = "s:"
)

// Store is the contract shared by all cache backends. Absence is not an
// error: Get returns ok=false on a miss and a non-nil error only when
// the store itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Expired   int64
	ItemCount int64
	HitRate   float64
}
