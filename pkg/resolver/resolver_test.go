package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"meshnode/pkg/models"
)

// fakeBlobs serves canned bytes per hash and can fail a number of times
// before succeeding.
type fakeBlobs struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	failures map[string]int
	fetches  int
	pins     int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}, failures: map[string]int{}}
}

func (f *fakeBlobs) put(b []byte) string {
	sum := sha256.Sum256(b)
	h := hex.EncodeToString(sum[:])
	f.mu.Lock()
	f.blobs[h] = b
	f.mu.Unlock()
	return h
}

func (f *fakeBlobs) Fetch(_ context.Context, hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if n := f.failures[hash]; n > 0 {
		f.failures[hash] = n - 1
		return nil, fmt.Errorf("%w: simulated outage", ErrUnavailable)
	}
	b, ok := f.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: not found", ErrUnavailable)
	}
	return b, nil
}

func (f *fakeBlobs) Pin(context.Context, string) error {
	f.mu.Lock()
	f.pins++
	f.mu.Unlock()
	return nil
}

func fastOpts() Options {
	return Options{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestResolveInline(t *testing.T) {
	content := `{"name":"alice"}`
	sum := sha256.Sum256([]byte(content))
	r := New(newFakeBlobs(), fastOpts())

	b, err := r.Resolve(context.Background(), models.ItemInline, hex.EncodeToString(sum[:]), models.HashSHA256, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != content {
		t.Fatalf("content mangled: %s", b)
	}
}

func TestResolveInlineHashMismatch(t *testing.T) {
	r := New(newFakeBlobs(), fastOpts())
	_, err := r.Resolve(context.Background(), models.ItemInline, "deadbeef", models.HashSHA256, `{"a":1}`)
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestResolveFetchTransientThenSuccess(t *testing.T) {
	blobs := newFakeBlobs()
	content := []byte(`{"k":"v"}`)
	hash := blobs.put(content)
	blobs.failures[hash] = 2

	r := New(blobs, fastOpts())
	b, err := r.Resolve(context.Background(), models.ItemIPFS, hash, models.HashSHA256, "")
	if err != nil {
		t.Fatalf("expected recovery after transient failures: %v", err)
	}
	if string(b) != string(content) {
		t.Fatalf("wrong bytes: %s", b)
	}
	if blobs.fetches != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", blobs.fetches)
	}
	if blobs.pins != 1 {
		t.Fatalf("successful resolution should pin once, got %d", blobs.pins)
	}
}

func TestResolveFetchExhaustion(t *testing.T) {
	blobs := newFakeBlobs()
	r := New(blobs, fastOpts())

	_, err := r.Resolve(context.Background(), models.ItemIPFS, "0000000000000000000000000000000000000000000000000000000000000000", models.HashSHA256, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if blobs.fetches != 3 {
		t.Fatalf("expected exactly MaxAttempts fetches, got %d", blobs.fetches)
	}
}

func TestResolveFetchedHashMismatchIsPermanent(t *testing.T) {
	blobs := newFakeBlobs()
	content := []byte(`{"k":"v"}`)
	hash := blobs.put(content)
	// corrupt the stored bytes after computing the address
	blobs.blobs[hash] = append([]byte(nil), content...)
	blobs.blobs[hash][0] ^= 0xff

	r := New(blobs, fastOpts())
	_, err := r.Resolve(context.Background(), models.ItemIPFS, hash, models.HashSHA256, "")
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if blobs.fetches != 1 {
		t.Fatalf("integrity failure must not be retried, got %d fetches", blobs.fetches)
	}
}

func TestResolveCacheAndForget(t *testing.T) {
	blobs := newFakeBlobs()
	content := []byte(`{"cached":true}`)
	hash := blobs.put(content)
	r := New(blobs, fastOpts())

	ctx := context.Background()
	if _, err := r.Resolve(ctx, models.ItemIPFS, hash, models.HashSHA256, ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, models.ItemIPFS, hash, models.HashSHA256, ""); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if blobs.fetches != 1 {
		t.Fatalf("second resolve must hit the cache, got %d fetches", blobs.fetches)
	}

	r.Forget(hash)
	if _, err := r.Resolve(ctx, models.ItemIPFS, hash, models.HashSHA256, ""); err != nil {
		t.Fatalf("post-forget resolve: %v", err)
	}
	if blobs.fetches != 2 {
		t.Fatalf("forget must drop the cache entry, got %d fetches", blobs.fetches)
	}
}

func TestResolveContextCancelled(t *testing.T) {
	blobs := newFakeBlobs()
	hash := "1111111111111111111111111111111111111111111111111111111111111111"
	blobs.failures[hash] = 10

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(blobs, fastOpts())
	_, err := r.Resolve(ctx, models.ItemIPFS, hash, models.HashSHA256, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("cancellation must surface as unavailable, got %v", err)
	}
}
