// Package memory provides in-process implementations of the domain cache
// contracts for single-instance deployments where Redis is not configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
)

// LockManager implements domain.LockManager with an in-process keyed mutex
// table. Locks expire after their TTL so a crashed holder cannot wedge a key
// forever.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	clock func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld when another
// unexpired holder owns it. The returned unlock function may be called more
// than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.clock()
	if expiry, ok := lm.held[key]; ok && expiry.After(now) {
		return nil, domain.ErrLockHeld
	}
	expiry := now.Add(ttl)
	lm.held[key] = expiry

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		// Only drop the entry if it is still ours (not expired and retaken).
		if cur, ok := lm.held[key]; ok && cur.Equal(expiry) {
			delete(lm.held, key)
		}
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
