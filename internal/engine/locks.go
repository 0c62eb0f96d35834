package engine

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes room-mutating operations per session instance.
// Operations on different instances proceed in parallel; within one
// instance, validate-then-mutate-then-persist sequences never interleave,
// so no two of them observe stale capacity counts. The lock is never held
// across a publish attempt.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[uuid.UUID]*lockEntry)}
}

// lock acquires the mutex for key and returns its release func. Entries are
// removed once the last holder releases, so the map stays bounded by the
// number of instances with in-flight operations.
func (k *keyedMutex) lock(key uuid.UUID) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
