// Package ratelimit implements the fixed-window request ledger shared by the
// edge proxies.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when a store cannot serve a request.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Entry is the ledger record for one caller key.
type Entry struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Store defines the ledger operations the Limiter needs.
type Store interface {
	// Get returns the entry for key and whether it exists.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Start replaces the entry for key with a count of 1 expiring at resetAt.
	Start(ctx context.Context, key string, resetAt time.Time) error

	// Increment adds one to the entry's count and returns the new count.
	Increment(ctx context.Context, key string) (int, error)

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by stores that can enumerate their entries.
type Lister interface {
	List(ctx context.Context) (map[string]Entry, error)
}

// Remover is implemented by stores that can remove an entry named either by
// its ledger key or by the key List reported for it, and tell whether one
// existed.
type Remover interface {
	Remove(ctx context.Context, key string) (bool, error)
}

// Ledger is a Store that can also enumerate and remove its entries. Both
// bundled stores implement it; the admin API depends on it.
type Ledger interface {
	Store
	Lister
	Remover
}

var (
	_ Ledger = (*MemoryStore)(nil)
	_ Ledger = (*RedisStore)(nil)
)
