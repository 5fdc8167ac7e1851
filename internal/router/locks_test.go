// ABOUTME: Tests for the per-client keyed mutex
// ABOUTME: Covers mutual exclusion, independent keys, and entry reclamation

package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/helpline-gateway/internal/store"
)

func TestClientLocks_MutualExclusion(t *testing.T) {
	locks := newClientLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(1)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestClientLocks_IndependentKeys(t *testing.T) {
	locks := newClientLocks()

	unlock1 := locks.Lock(1)
	// A different client id must not block.
	unlock2 := locks.Lock(2)
	unlock2()
	unlock1()
}

func TestClientLocks_DoubleUnlock(t *testing.T) {
	locks := newClientLocks()

	unlock := locks.Lock(1)
	unlock()
	unlock()

	// The lock is still usable afterwards.
	unlock = locks.Lock(1)
	unlock()
}

func TestClientLocks_EntriesReclaimed(t *testing.T) {
	locks := newClientLocks()

	for id := 1; id <= 10; id++ {
		unlock := locks.Lock(store.UserID(id))
		unlock()
	}

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
