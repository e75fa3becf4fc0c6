package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/telemetry"
	"meshnode/pkg/utils"
)

// ErrHashMismatch is a permanent integrity failure: the resolved bytes do
// not digest to the claimed item_hash. Never retried.
var ErrHashMismatch = errors.New("hash mismatch")

// Options bound the fetch retry loop. Attempts and backoff are fixed so a
// stuck hash cannot grow the backlog without bound.
type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultOptions mirror the node defaults: 3 attempts, 250ms doubling
// backoff capped at 2s.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, BaseBackoff: 250 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// Resolver turns an item reference into verified content bytes. Resolved
// bytes are cached by item_hash so retries of the same candidate do not
// re-fetch; the ingest pipeline calls Forget once a candidate reaches a
// terminal outcome.
type Resolver struct {
	blobs BlobStore
	opts  Options

	mu    sync.Mutex
	cache map[string][]byte
}

// New builds a Resolver over the given blob store.
func New(blobs BlobStore, opts Options) *Resolver {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultOptions().BaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultOptions().MaxBackoff
	}
	return &Resolver{blobs: blobs, opts: opts, cache: make(map[string][]byte)}
}

// Resolve produces the verified content bytes for a message's item
// reference. INLINE content is digest-checked in place; content-addressed
// items are fetched with bounded backoff and then digest-checked. A digest
// mismatch is permanent (ErrHashMismatch); fetch exhaustion is transient
// (ErrUnavailable).
func (r *Resolver) Resolve(ctx context.Context, itemType models.ItemType, itemHash string, hashType models.HashType, inline string) ([]byte, error) {
	if itemType == models.ItemInline {
		b := []byte(inline)
		if err := r.verify(b, itemHash, hashType); err != nil {
			return nil, err
		}
		return b, nil
	}

	if b, ok := r.cached(itemHash); ok {
		return b, nil
	}

	var lastErr error
	backoff := r.opts.BaseBackoff
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		start := time.Now()
		b, err := r.blobs.Fetch(ctx, itemHash)
		telemetry.ObserveResolverFetch(time.Since(start), err == nil)
		if err == nil {
			if verr := r.verify(b, itemHash, hashType); verr != nil {
				return nil, verr
			}
			r.remember(itemHash, b)
			if perr := r.blobs.Pin(ctx, itemHash); perr != nil {
				logger.Debug("blob_pin_failed", "hash", itemHash, "error", perr)
			}
			return b, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		lastErr = err
		logger.Debug("resolve_attempt_failed", "hash", itemHash, "attempt", attempt, "error", err)
		if attempt == r.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.opts.MaxBackoff {
			backoff = r.opts.MaxBackoff
		}
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return nil, lastErr
}

// Forget drops the cached bytes for hash. Called after a candidate reaches
// a terminal outcome so the cache only spans the validation attempt.
func (r *Resolver) Forget(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, hash)
}

func (r *Resolver) verify(b []byte, itemHash string, hashType models.HashType) error {
	digest, err := utils.DigestHex(hashType, b)
	if err != nil {
		return err
	}
	if digest != itemHash {
		logger.Warn("content_hash_mismatch", "want", itemHash, "got", digest)
		return fmt.Errorf("%w: want %s got %s", ErrHashMismatch, itemHash, digest)
	}
	return nil
}

func (r *Resolver) cached(hash string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.cache[hash]
	return b, ok
}

func (r *Resolver) remember(hash string, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[hash] = b
}
