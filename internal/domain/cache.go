package domain

import (
	"context"
	"io"
	"time"
)

// PriceCache provides fast access to the latest observed prices per
// exchange/symbol. It is a best-effort fast path; callers fall back to a live
// fetch on ErrNotFound or stale data.
type PriceCache interface {
	SetTick(ctx context.Context, exchange, symbol string, tick Tick) error
	GetTick(ctx context.Context, exchange, symbol string) (Tick, error)
}

// LockManager provides mutual exclusion keyed by string. Acquire returns
// ErrLockHeld when another holder owns the key; the returned unlock function
// is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
