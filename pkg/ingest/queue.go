package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"meshnode/pkg/models"
	"meshnode/pkg/telemetry"
)

const fallbackQueueCapacity = 1024

// Candidate is one raw envelope waiting for validation, tagged with its
// delivery path. Payload may be backed by a pooled ByteBuffer; consumers
// must call Item.Done() when finished.
type Candidate struct {
	Raw    []byte
	Source models.Source
	// Attempt counts validation attempts so the retry budget is enforced
	// deterministically.
	Attempt int
	// EnqSeq is a monotonic enqueue sequence assigned on acceptance into
	// the queue; used only for diagnostics.
	EnqSeq uint64
}

// Item wraps a Candidate and owns its pooled buffer. Consumers MUST call
// Done() exactly once after processing.
type Item struct {
	Candidate *Candidate

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources back to their pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) > maxPooledBuffer {
				// drop oversized buffers so GC can reclaim them
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Candidate != nil {
			it.Candidate.Raw = nil
			candPool.Put(it.Candidate)
			it.Candidate = nil
		}
		itemPool.Put(it)
	})
}

var candPool = sync.Pool{New: func() any { return &Candidate{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer bounds the largest payload buffer returned to the pool.
var maxPooledBuffer = 256 * 1024 // 256 KiB

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// Queue is a bounded in-memory queue of candidates feeding the processor
// workers. Safe for concurrent producers.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	enqSeq   uint64
}

// NewQueue creates a bounded Queue with the provided capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackQueueCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out exposes items for consumers; do not close from callers.
func (q *Queue) Out() <-chan *Item { return q.ch }

func (q *Queue) newItem(c *Candidate) *Item {
	nc := candPool.Get().(*Candidate)
	*nc = *c
	nc.EnqSeq = atomic.AddUint64(&q.enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(c.Raw) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], c.Raw...)
		nc.Raw = bb.B[:len(c.Raw)]
	}
	it := itemPool.Get().(*Item)
	it.Candidate = nc
	it.buf = bb
	it.once = sync.Once{}
	return it
}

// TryEnqueue enqueues without blocking; returns ErrQueueFull when full.
func (q *Queue) TryEnqueue(c *Candidate) error {
	it := q.newItem(c)
	select {
	case q.ch <- it:
		telemetry.SetQueueDepth(len(q.ch))
		return nil
	default:
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Enqueue blocks until the candidate is queued or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, c *Candidate) error {
	it := q.newItem(c)
	select {
	case q.ch <- it:
		telemetry.SetQueueDepth(len(q.ch))
		return nil
	case <-ctx.Done():
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		return ctx.Err()
	}
}

// CloseAndDrain closes the queue and releases any remaining items.
func (q *Queue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current number of queued items.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns candidates dropped on full queue or cancellation.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
