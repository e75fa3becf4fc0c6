package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/store"
	"meshnode/pkg/telemetry"
)

// Engine applies the type-specific state transition for a validated
// message. Every transition is idempotent and order-independent: applying
// the same set of valid messages in any order converges to the same
// derived state. No network I/O happens here.
type Engine struct {
	st *store.Store
}

// New builds an engine over the persistence gateway.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

// Apply routes a message to its transition. content is the resolved,
// digest-verified payload; the validator has already checked its shape.
func (e *Engine) Apply(m *models.Message, content []byte) error {
	var err error
	switch m.Type {
	case models.TypePost:
		err = e.applyPost(m, content)
	case models.TypeAggregate:
		err = e.applyAggregate(m, content)
	case models.TypeStore:
		err = e.applyStore(m)
	default:
		return fmt.Errorf("unsupported message type: %s", m.Type)
	}
	if err == nil {
		telemetry.IncApplied(string(m.Type))
	}
	return err
}

// applyPost creates the immutable post record. A key collision can only be
// the same content under the hash-integrity invariant, so it is a no-op.
func (e *Engine) applyPost(m *models.Message, content []byte) error {
	var body struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(content, &body); err != nil {
		return fmt.Errorf("post content not an object: %w", err)
	}
	var full interface{}
	if err := json.Unmarshal(content, &full); err != nil {
		return err
	}
	rec := &models.PostRecord{
		ItemHash: m.ItemHash,
		Address:  m.Sender,
		Channel:  m.Channel,
		Time:     m.Time,
		PostType: body.Type,
		Content:  full,
	}
	inserted, err := e.st.InsertPost(rec)
	if err != nil {
		return err
	}
	if !inserted {
		logger.Debug("post_already_present", "hash", m.ItemHash)
	}
	return nil
}

// applyAggregate merges every entry of the content mapping into its
// (sender, key) document under the convergence rule. Keys absent from this
// message are left untouched. Keys are walked in sorted order so a single
// message's writes land deterministically.
func (e *Engine) applyAggregate(m *models.Message, content []byte) error {
	var entries map[string]interface{}
	if err := json.Unmarshal(content, &entries); err != nil {
		return fmt.Errorf("aggregate content not a mapping: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.st.MergeAggregateEntry(m.Sender, k, entries[k], m.Time, m.ItemHash); err != nil {
			return fmt.Errorf("merge %s/%s: %w", m.Sender, k, err)
		}
	}
	return nil
}

// applyStore records the content reference. Duplicate STORE messages for
// the same hash are idempotent no-ops.
func (e *Engine) applyStore(m *models.Message) error {
	rec := &models.FileRecord{
		ItemHash: m.ItemHash,
		Address:  m.Sender,
		ItemType: m.ItemType,
		Time:     m.Time,
	}
	inserted, err := e.st.InsertFile(rec)
	if err != nil {
		return err
	}
	if !inserted {
		logger.Debug("file_already_present", "hash", m.ItemHash)
	}
	return nil
}
