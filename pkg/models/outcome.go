package models

// Classification is the validator verdict for one candidate.
type Classification int

const (
	// Accepted: the message passed every check and may be aggregated.
	Accepted Classification = iota
	// Rejected: a permanent failure; recorded for audit, never retried.
	Rejected
	// Deferred: a transient failure; the candidate is re-queued with backoff.
	Deferred
)

func (c Classification) String() string {
	switch c {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Deferred:
		return "deferred"
	}
	return "unknown"
}

// Machine-readable reason strings surfaced at the API boundary and stored
// on rejected messages.
const (
	ReasonUnsupportedField   = "unsupported-field"
	ReasonSchema             = "schema-error"
	ReasonInvalidStoreInline = "invalid-store-content"
	ReasonInvalidContent     = "invalid-content"
	ReasonUnknownChain       = "unknown-chain"
	ReasonInvalidSignature   = "invalid-signature"
	ReasonVerifierPending    = "verifier-pending"
	ReasonContentUnavailable = "content-unavailable"
	ReasonHashMismatch       = "hash-mismatch"
	ReasonUnresolvable       = "unresolvable"
	ReasonDuplicate          = "duplicate"
)

// Outcome pairs a classification with its reason; Hash carries the computed
// item_hash back to synchronous submitters.
type Outcome struct {
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason,omitempty"`
	Hash           string         `json:"item_hash,omitempty"`
}

// MarshalJSON is implemented on Classification so outcomes serialize as
// their lowercase names rather than integers.
func (c Classification) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}
