package dedup

import (
	"sync"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/store"
)

// Index is the deduplication gate in front of the aggregation engine. It
// tracks the item_hash of every message that reached a terminal accepted
// state: first admission wins, every later delivery of the same hash is a
// duplicate no matter which path it arrived on.
//
// The durable seen-set lives in the store; a small in-memory set fronts it
// so the hot path usually avoids a read. The index is owned by the ingest
// processor and passed explicitly, never a package singleton.
type Index struct {
	st *store.Store

	mu   sync.Mutex
	warm map[string]struct{}
}

// NewIndex builds an index over the store's seen-set.
func NewIndex(st *store.Store) *Index {
	return &Index{st: st, warm: make(map[string]struct{})}
}

// Admit returns true exactly once per item_hash. The insert is atomic
// check-then-act: under concurrent deliveries of the same hash only one
// caller sees true.
func (ix *Index) Admit(m *models.Message) (bool, error) {
	ix.mu.Lock()
	_, hot := ix.warm[m.ItemHash]
	ix.mu.Unlock()
	if hot {
		return false, nil
	}

	first, err := ix.st.InsertSeen(m.ItemHash)
	if err != nil {
		return false, err
	}
	ix.mu.Lock()
	ix.warm[m.ItemHash] = struct{}{}
	ix.mu.Unlock()
	if !first {
		logger.Debug("duplicate_message", "hash", m.ItemHash)
	}
	return first, nil
}

// Seen reports membership without admitting.
func (ix *Index) Seen(hash string) (bool, error) {
	ix.mu.Lock()
	_, hot := ix.warm[hash]
	ix.mu.Unlock()
	if hot {
		return true, nil
	}
	return ix.st.HasSeen(hash)
}
