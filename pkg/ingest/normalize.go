package ingest

import (
	"encoding/json"
	"fmt"

	"meshnode/pkg/models"
	"meshnode/pkg/utils"
)

// Normalize turns a raw envelope into the canonical message shape:
// unmarshal, apply the item_type/hash_type defaulting rules, and compute
// the item_hash for inline submissions that omitted it (API callers get
// the computed hash back). A missing hash on a content-addressed item is
// left for the validator to reject.
func Normalize(raw []byte) (*models.Message, error) {
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	m.ApplyDefaults()
	if m.ItemHash == "" && m.ItemType == models.ItemInline {
		digest, err := utils.DigestHex(m.HashType, []byte(m.ItemContent))
		if err != nil {
			return nil, err
		}
		m.ItemHash = digest
	}
	m.Status = models.StatusPending
	m.Outcome = ""
	return &m, nil
}
