package app

import "sync"

// recordLocker serializes read-modify-diff cycles per record.
type recordLocker struct {
	mu    sync.Mutex
	locks map[recordKey]*recordLock
}

// recordLock is one reference-counted per-record mutex.
type recordLock struct {
	mu   sync.Mutex
	refs int
}

// newRecordLocker constructs an empty locker.
func newRecordLocker() *recordLocker {
	return &recordLocker{locks: map[recordKey]*recordLock{}}
}

// Lock acquires every key in a stable order and returns the matching release func.
func (l *recordLocker) Lock(keys ...recordKey) func() {
	ordered := sortedKeys(keys)
	held := make([]*recordLock, 0, len(ordered))
	for _, key := range ordered {
		held = append(held, l.acquire(key))
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.release(ordered[i], held[i])
		}
	}
}

// acquire blocks until key is held.
func (l *recordLocker) acquire(key recordKey) *recordLock {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &recordLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()
	lock.mu.Lock()
	return lock
}

// release unlocks key and drops idle entries.
func (l *recordLocker) release(key recordKey, lock *recordLock) {
	lock.mu.Unlock()
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
