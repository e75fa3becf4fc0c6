package models

// AggregateDocument is the merged per-(address,key) view built from
// AGGREGATE messages. LastUpdateTime and LastHash identify the winning
// contribution under the convergence rule: greatest time wins, and on equal
// time the lexicographically smaller item_hash wins.
type AggregateDocument struct {
	Address        string      `json:"address"`
	Key            string      `json:"key"`
	Content        interface{} `json:"content"`
	LastUpdateTime int64       `json:"last_update_time"`
	LastHash       string      `json:"last_hash"`
}

// Supersedes reports whether an update stamped (time, hash) wins over the
// document's current (LastUpdateTime, LastHash). Both the aggregation
// engine and the store CAS path use this single comparison so the merge
// stays order-independent.
func (d *AggregateDocument) Supersedes(time int64, hash string) bool {
	if time != d.LastUpdateTime {
		return time > d.LastUpdateTime
	}
	return hash < d.LastHash
}

// PostRecord is an immutable post keyed by item_hash. PostType is the
// user-supplied tag found inside the resolved content.
type PostRecord struct {
	ItemHash string      `json:"item_hash"`
	Address  string      `json:"address"`
	Channel  string      `json:"channel"`
	Time     int64       `json:"time"`
	PostType string      `json:"post_type"`
	Content  interface{} `json:"content"`
}

// FileRecord references stored content by hash; the bytes themselves stay
// in the blob store.
type FileRecord struct {
	ItemHash string   `json:"item_hash"`
	Address  string   `json:"address"`
	ItemType ItemType `json:"item_type"`
	Time     int64    `json:"time"`
}

// ConfirmationRecord links a message to its inclusion proof on one chain.
// A message may accumulate one record per chain.
type ConfirmationRecord struct {
	ItemHash string `json:"item_hash"`
	Chain    string `json:"chain"`
	Height   int64  `json:"height"`
	TxRef    string `json:"tx_ref"`
}
