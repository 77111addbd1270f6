package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akornilov/crossarb/internal/domain"
)

func TestAcquireRelease(t *testing.T) {
	lm := NewLockManager()

	unlock, err := lm.Acquire(context.Background(), "position:1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(context.Background(), "position:1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock() // safe to call twice

	_, err = lm.Acquire(context.Background(), "position:1", time.Minute)
	assert.NoError(t, err)
}

func TestIndependentKeys(t *testing.T) {
	lm := NewLockManager()

	_, err := lm.Acquire(context.Background(), "position:1", time.Minute)
	require.NoError(t, err)
	_, err = lm.Acquire(context.Background(), "position:2", time.Minute)
	assert.NoError(t, err)
}

func TestExpiredLockCanBeRetaken(t *testing.T) {
	lm := NewLockManager()
	now := time.Now()
	lm.clock = func() time.Time { return now }

	stale, err := lm.Acquire(context.Background(), "cycle", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = lm.Acquire(context.Background(), "cycle", time.Second)
	assert.NoError(t, err, "expired locks are retakable")

	// The stale holder's unlock must not release the new holder.
	stale()
	_, err = lm.Acquire(context.Background(), "cycle", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	lm := NewLockManager()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lm.Acquire(context.Background(), "position:1", time.Minute); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
