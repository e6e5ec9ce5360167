// Package keylock serializes work per key. An entry lives only while some
// caller holds or waits on it.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks is a set of per-key mutexes. The zero value is ready to use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until key is free and returns its unlock func.
func (l *Locks) Lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			if e.refs--; e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len is the number of keys held or waited on.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
