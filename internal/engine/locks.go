package engine

import "sync"

// fieldLocks serializes resolutions per (entity, field) key. Entries are
// reference-counted and dropped when the last holder releases, so the table
// stays proportional to in-flight work.
type fieldLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release func.
func (l *fieldLocks) lock(key string) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*lockEntry)
	}
	e := l.held[key]
	if e == nil {
		e = &lockEntry{}
		l.held[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
