package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	key := uuid.New()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock(key)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := km.lock(a)
	// Holding a must not block b.
	done := make(chan struct{})
	go func() {
		unlockB := km.lock(b)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyedMutexEntriesReleased(t *testing.T) {
	km := newKeyedMutex()
	key := uuid.New()

	unlock := km.lock(key)
	unlock()

	km.mu.Lock()
	n := len(km.entries)
	km.mu.Unlock()
	if n != 0 {
		t.Errorf("entries map holds %d entries after release, want 0", n)
	}
}
