package kv

import "sync"

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per key. Entries are dropped once no goroutine
// holds or waits on them, so the map only grows with contended keys.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

func NewKeyLock() *KeyLock {
	return &KeyLock{
		locks: make(map[string]*keyEntry),
	}
}

// Lock blocks until the key is free and returns the function that releases it.
func (l *KeyLock) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Held returns the number of keys currently locked or waited on.
func (l *KeyLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
