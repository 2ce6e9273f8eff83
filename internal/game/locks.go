package game

import "sync"

// roomLocks hands out one mutex per game code so the read-mutate-publish
// sequence of an action is serialized within a room while rooms stay fully
// independent. Entries are reference counted and removed when idle, so the
// map does not grow with every game ever played.
type roomLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{
		entries: make(map[string]*lockEntry),
	}
}

// lock acquires the room's mutex and returns the matching release function.
func (l *roomLocks) lock(code string) func() {
	l.mu.Lock()
	entry := l.entries[code]
	if entry == nil {
		entry = &lockEntry{}
		l.entries[code] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, code)
		}
		l.mu.Unlock()
	}
}
