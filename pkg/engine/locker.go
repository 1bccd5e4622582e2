package engine

import (
	"context"
	"sync"
)

// Locker serializes membership changes per project across the processes
// sharing a store. Lock blocks until the key is held and returns the
// function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type namedLocker interface {
	Name() string
}

// KeyedLocker is an in-process Locker with one mutex per key. Entries are
// dropped once no caller holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an empty in-process locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Name identifies the backend in metrics
func (l *KeyedLocker) Name() string {
	return "local"
}

// Lock waits for key or ctx, whichever comes first
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently held or awaited
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
