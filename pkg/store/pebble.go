package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
)

// Store is the durable persistence gateway: the append-only message log,
// derived documents and replay indices over a single Pebble database.
// Insert-if-absent and compare-and-swap sequences are serialized with
// per-key locks; Pebble gives per-write atomicity, nothing cross-document.
type Store struct {
	db    *pebble.DB
	path  string
	locks *keyLocks
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path, locks: newKeyLocks()}, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

func (s *Store) guard() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return nil
}

// --- message log ---

// SaveMessage writes the message record and its ordering index entries in
// one batch. The record is keyed by item_hash; calling this twice for the
// same hash overwrites with identical content, which is harmless.
func (s *Store) SaveMessage(m *models.Message) error {
	if err := s.guard(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	wb := s.db.NewBatch()
	defer wb.Close()
	_ = wb.Set(msgKey(m.ItemHash), data, nil)
	// only accepted messages enter the replay order
	if m.Channel != "" && m.Status == models.StatusAccepted {
		_ = wb.Set(chanIdxKey(m.Channel, m.Time, m.ItemHash), []byte(m.ItemHash), nil)
	}
	if err := s.db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "hash", m.ItemHash, "error", err)
		return err
	}
	logger.Debug("message_saved", "hash", m.ItemHash, "channel", m.Channel)
	return nil
}

// GetMessage loads a message record by item_hash.
func (s *Store) GetMessage(hash string) (*models.Message, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get(msgKey(hash))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid message record: %w", err)
	}
	return &m, nil
}

// HasMessage reports whether a record exists for hash.
func (s *Store) HasMessage(hash string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get(msgKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// ErrNotConfirmable is returned by MarkConfirmed for records that never
// passed validation. Rejected audit records and pending envelopes must not
// gain confirmed status.
var ErrNotConfirmable = errors.New("message is not in a confirmable state")

// MarkConfirmed flips an accepted message to confirmed status. Idempotent
// for already-confirmed records; any other status is refused with
// ErrNotConfirmable. The validation outcome is left untouched.
func (s *Store) MarkConfirmed(hash string) error {
	if err := s.guard(); err != nil {
		return err
	}
	l := s.locks.get("msg:" + hash)
	l.Lock()
	defer l.Unlock()

	m, err := s.GetMessage(hash)
	if err != nil {
		return err
	}
	if m.Status == models.StatusConfirmed {
		return nil
	}
	if m.Status != models.StatusAccepted {
		return ErrNotConfirmable
	}
	m.Status = models.StatusConfirmed
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Set(msgKey(hash), data, pebble.Sync)
}

// --- dedup terminal set ---

// InsertSeen atomically inserts hash into the seen-set. Returns true the
// first time, false for duplicates.
func (s *Store) InsertSeen(hash string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	l := s.locks.get("seen:" + hash)
	l.Lock()
	defer l.Unlock()

	_, closer, err := s.db.Get(seenKey(hash))
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	if err := s.db.Set(seenKey(hash), []byte{1}, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// HasSeen reports membership without inserting.
func (s *Store) HasSeen(hash string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get(seenKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// --- aggregate documents ---

// MergeAggregateEntry applies one (address,key) update under the
// convergence rule: the write happens only if (ts,hash) supersedes the
// stored (last_update_time, last_hash). Compare-and-swap under the per-key
// lock; losing updates still record their ordering index entry so replay
// stays complete.
func (s *Store) MergeAggregateEntry(address, key string, value interface{}, ts int64, hash string) error {
	if err := s.guard(); err != nil {
		return err
	}
	l := s.locks.get("agg:" + address + ":" + key)
	l.Lock()
	defer l.Unlock()

	doc, err := s.GetAggregate(address, key)
	if errors.Is(err, pebble.ErrNotFound) {
		doc = &models.AggregateDocument{Address: address, Key: key}
		err = nil
	}
	if err != nil {
		return err
	}

	wb := s.db.NewBatch()
	defer wb.Close()
	_ = wb.Set(aggIdxKey(address, key, ts, hash), []byte(hash), nil)

	if doc.LastHash == "" || doc.Supersedes(ts, hash) {
		doc.Content = value
		doc.LastUpdateTime = ts
		doc.LastHash = hash
		data, merr := json.Marshal(doc)
		if merr != nil {
			return merr
		}
		_ = wb.Set(aggKey(address, key), data, nil)
	}
	return s.db.Apply(wb, pebble.Sync)
}

// GetAggregate loads the document for (address, key).
func (s *Store) GetAggregate(address, key string) (*models.AggregateDocument, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get(aggKey(address, key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var doc models.AggregateDocument
	if err := json.Unmarshal(v, &doc); err != nil {
		return nil, fmt.Errorf("invalid aggregate record: %w", err)
	}
	return &doc, nil
}

// ListAggregates returns every aggregate document for an address.
func (s *Store) ListAggregates(address string) ([]*models.AggregateDocument, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	prefix := aggPrefix(address)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.AggregateDocument
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var doc models.AggregateDocument
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			return nil, fmt.Errorf("invalid aggregate record: %w", err)
		}
		out = append(out, &doc)
	}
	return out, iter.Error()
}

// --- posts and files ---

// InsertPost writes the record if no post exists for its hash. Returns
// true when inserted. Under the hash-integrity invariant a collision can
// only be a duplicate, so false is a no-op signal, not an error.
func (s *Store) InsertPost(rec *models.PostRecord) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	l := s.locks.get("post:" + rec.ItemHash)
	l.Lock()
	defer l.Unlock()

	_, closer, err := s.db.Get(postKey(rec.ItemHash))
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(postKey(rec.ItemHash), data, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// GetPost loads a post record by hash.
func (s *Store) GetPost(hash string) (*models.PostRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get(postKey(hash))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var rec models.PostRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("invalid post record: %w", err)
	}
	return &rec, nil
}

// InsertFile writes the record if absent; duplicate STORE messages for the
// same content are idempotent.
func (s *Store) InsertFile(rec *models.FileRecord) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	l := s.locks.get("file:" + rec.ItemHash)
	l.Lock()
	defer l.Unlock()

	_, closer, err := s.db.Get(fileKey(rec.ItemHash))
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(fileKey(rec.ItemHash), data, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// GetFile loads a file record by hash.
func (s *Store) GetFile(hash string) (*models.FileRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	v, closer, err := s.db.Get(fileKey(hash))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var rec models.FileRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("invalid file record: %w", err)
	}
	return &rec, nil
}

// --- confirmations ---

// AppendConfirmation writes one per-chain confirmation record if absent
// and reports whether it was new. Repeat confirmations on the same chain
// are ignored; the caller flips message status separately.
func (s *Store) AppendConfirmation(rec *models.ConfirmationRecord) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	l := s.locks.get("conf:" + rec.ItemHash)
	l.Lock()
	defer l.Unlock()

	key := confKey(rec.ItemHash, rec.Chain)
	_, closer, err := s.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// ListConfirmations returns every chain confirmation for a message hash.
func (s *Store) ListConfirmations(hash string) ([]*models.ConfirmationRecord, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	prefix := confPrefix(hash)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*models.ConfirmationRecord
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec models.ConfirmationRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("invalid confirmation record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, iter.Error()
}

// --- replay ---

// ReplayChannel walks a channel's ordering index in deterministic order
// (ascending time, tie-break item_hash) and invokes fn with each message
// hash. fn returning false stops the walk.
func (s *Store) ReplayChannel(channel string, fn func(hash string) bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	prefix := chanIdxPrefix(channel)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(string(iter.Value())) {
			break
		}
	}
	return iter.Error()
}

// ReplayAggregateKey walks the (address,key) ordering index in the same
// deterministic order, for recomputing a document from its history.
func (s *Store) ReplayAggregateKey(address, key string, fn func(hash string) bool) error {
	if err := s.guard(); err != nil {
		return err
	}
	prefix := aggIdxPrefix(address, key)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !fn(string(iter.Value())) {
			break
		}
	}
	return iter.Error()
}

// IsNotFound reports whether err is the store's missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }
