package lifecycle

import "sync"

// lineageLocks serializes mutations per lineage inside one process. Entries
// are reference counted and dropped once the last holder unlocks, so the map
// only holds lineages with in-flight work.
type lineageLocks struct {
	mu    sync.Mutex
	locks map[string]*lineageLock
}

type lineageLock struct {
	mu      sync.Mutex
	waiting int // holders plus waiters
}

func newLineageLocks() *lineageLocks {
	return &lineageLocks{locks: make(map[string]*lineageLock)}
}

// lock blocks until lineageID is free and returns the matching unlock.
func (l *lineageLocks) lock(lineageID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[lineageID]
	if !ok {
		entry = &lineageLock{}
		l.locks[lineageID] = entry
	}
	entry.waiting++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.waiting--
		if entry.waiting == 0 {
			delete(l.locks, lineageID)
		}
		l.mu.Unlock()
	}
}

// inflight returns the number of lineages currently locked or awaited.
func (l *lineageLocks) inflight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
