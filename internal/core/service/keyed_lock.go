package service

import "sync"

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks hands out one mutex per key. Entries are reference counted and
// dropped once the last holder or waiter releases, so the map only holds keys
// with an operation in flight.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyLock)}
}

// lock blocks until the caller owns key and returns the release function.
// Releasing twice is a no-op.
func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
