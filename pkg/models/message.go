package models

// MessageType distinguishes the three state transitions the engine applies.
type MessageType string

const (
	TypePost      MessageType = "POST"
	TypeAggregate MessageType = "AGGREGATE"
	TypeStore     MessageType = "STORE"
)

// Valid reports whether t is one of the supported message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypePost, TypeAggregate, TypeStore:
		return true
	}
	return false
}

// ItemType says where the message content lives: embedded in the envelope
// or behind a content address in the blob store.
type ItemType string

const (
	ItemInline ItemType = "INLINE"
	ItemIPFS   ItemType = "IPFS"
)

func (t ItemType) Valid() bool { return t == ItemInline || t == ItemIPFS }

// HashType names the digest algorithm backing item_hash. SHA256 is the only
// registered algorithm; the enum exists so new ones can be added without
// changing the wire shape.
type HashType string

const (
	HashSHA256 HashType = "SHA256"
)

func (t HashType) Valid() bool { return t == HashSHA256 }

// Status tracks a message through validation and chain confirmation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
)

// Source tags the delivery path a candidate arrived on.
type Source string

const (
	SourceGossip Source = "gossip"
	SourceAPI    Source = "api"
	SourceChain  Source = "chain-replay"
)

// Message is the canonical envelope. It is append-only once accepted:
// Outcome (written exactly once) and Status (pending->confirmed) are the
// only fields that change after creation.
type Message struct {
	Type        MessageType `json:"type"`
	Channel     string      `json:"channel"`
	Time        int64       `json:"time"`
	Sender      string      `json:"sender"`
	Chain       string      `json:"chain"`
	Signature   string      `json:"signature,omitempty"`
	ItemHash    string      `json:"item_hash"`
	ItemType    ItemType    `json:"item_type,omitempty"`
	HashType    HashType    `json:"hash_type,omitempty"`
	ItemContent string      `json:"item_content,omitempty"`

	// Written by the node, never by the sender.
	Status  Status `json:"status,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// ApplyDefaults fills item_type and hash_type per the envelope defaulting
// rules: INLINE when item_content is present, IPFS otherwise; SHA256 digest.
func (m *Message) ApplyDefaults() {
	if m.ItemType == "" {
		if m.ItemContent != "" {
			m.ItemType = ItemInline
		} else {
			m.ItemType = ItemIPFS
		}
	}
	if m.HashType == "" {
		m.HashType = HashSHA256
	}
}
