// ABOUTME: Per-client mutual exclusion keyed by client id
// ABOUTME: Serializes all state transitions touching one client's request and invitation set

package router

import (
	"sync"

	"github.com/2389/helpline-gateway/internal/store"
)

// clientLocks hands out one mutex per client id. Entries are reference
// counted and removed once no caller holds or waits on them, so the map does
// not grow with the lifetime user population.
type clientLocks struct {
	mu    sync.Mutex
	locks map[store.UserID]*clientLock
}

type clientLock struct {
	mu   sync.Mutex
	refs int
}

func newClientLocks() *clientLocks {
	return &clientLocks{locks: make(map[store.UserID]*clientLock)}
}

// Lock acquires the critical section for a client id and returns the release
// function. The release function is safe to call more than once.
func (l *clientLocks) Lock(id store.UserID) func() {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &clientLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cl.mu.Unlock()
			l.mu.Lock()
			cl.refs--
			if cl.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}
