package store

import (
	"fmt"
	"strings"
)

// Key namespaces. Everything is prefix-iterable:
//
//	msg:<item_hash>                          message record
//	seen:<item_hash>                         dedup terminal set
//	agg:<address>:<key>                      aggregate document
//	post:<item_hash>                         post record
//	file:<item_hash>                         file record
//	conf:<item_hash>:<chain>                 confirmation record
//	idx:chan:<channel>:<time>-<item_hash>    per-channel replay order
//	idx:agg:<address>:<key>:<time>-<hash>    per-(address,key) replay order
//
// Timestamps are zero-padded to 20 digits so byte order equals numeric
// order; the trailing item_hash makes equal-time entries sort by the same
// tie-break the merge rule uses.
//
// Channel names, addresses and aggregate keys are free-form sender input,
// so every variable interior segment is escaped before composition:
// otherwise the prefix for channel "x" would also match channel "x:y".

func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, ":", "%3A")
}

func msgKey(hash string) []byte  { return []byte("msg:" + hash) }
func seenKey(hash string) []byte { return []byte("seen:" + hash) }
func postKey(hash string) []byte { return []byte("post:" + hash) }
func fileKey(hash string) []byte { return []byte("file:" + hash) }

func aggKey(address, key string) []byte {
	return []byte("agg:" + escapeSegment(address) + ":" + escapeSegment(key))
}

func aggPrefix(address string) []byte {
	return []byte("agg:" + escapeSegment(address) + ":")
}

func confKey(hash, chain string) []byte {
	return []byte("conf:" + escapeSegment(hash) + ":" + escapeSegment(chain))
}

func confPrefix(hash string) []byte {
	return []byte("conf:" + escapeSegment(hash) + ":")
}

func chanIdxKey(channel string, ts int64, hash string) []byte {
	return []byte(fmt.Sprintf("idx:chan:%s:%020d-%s", escapeSegment(channel), ts, hash))
}

func chanIdxPrefix(channel string) []byte {
	return []byte("idx:chan:" + escapeSegment(channel) + ":")
}

func aggIdxKey(address, key string, ts int64, hash string) []byte {
	return []byte(fmt.Sprintf("idx:agg:%s:%s:%020d-%s", escapeSegment(address), escapeSegment(key), ts, hash))
}

func aggIdxPrefix(address, key string) []byte {
	return []byte("idx:agg:" + escapeSegment(address) + ":" + escapeSegment(key) + ":")
}
