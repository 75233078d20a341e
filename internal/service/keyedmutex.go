package service

import (
	"sync"
	"time"
)

// keyedMutex provides per-key non-blocking locks plus a per-key
// last-success timestamp for debouncing repeat work. Lost on restart,
// which is acceptable: the operations it guards are idempotent.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]bool
	last map[string]time.Time
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		held: make(map[string]bool),
		last: make(map[string]time.Time),
	}
}

// TryLock acquires the key's lock without blocking. Returns false when
// another goroutine already holds it.
func (k *keyedMutex) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.held[key] {
		return false
	}
	k.held[key] = true
	return true
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}

// Touch records a successful completion for the key.
func (k *keyedMutex) Touch(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.last[key] = time.Now()
}

// Debounced reports whether the key completed successfully within the
// given window.
func (k *keyedMutex) Debounced(key string, window time.Duration) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	last, ok := k.last[key]
	return ok && time.Since(last) < window
}
