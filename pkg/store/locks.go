package store

import "sync"

// keyLocks serializes check-then-act sequences on a per-key basis. Entries
// are created on demand and kept for the process lifetime; the key space is
// bounded by active addresses and hashes, which is acceptable for a node.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]*sync.Mutex)}
}

// returns the mutex for the given key (creates if needed)
func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.m[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.m[key] = l
	return l
}
