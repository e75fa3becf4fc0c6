package confirm

import (
	"context"
	"errors"
	"sync"
	"time"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/store"
	"meshnode/pkg/telemetry"
)

// Event is one chain-inclusion proof from an external chain indexer.
// Delivery is at-least-once and may precede the message's ingestion.
type Event struct {
	ItemHash string
	Chain    string
	Height   int64
	TxRef    string
}

// Tracker attaches confirmation records to already-accepted messages. It
// runs concurrently with ingestion and only ever updates confirmation
// metadata: it never re-triggers or reverses aggregation, because ordering
// aggregation by confirmation time would break deterministic convergence.
type Tracker struct {
	st     *store.Store
	window time.Duration

	mu      sync.Mutex
	pending map[string][]bufferedEvent
}

type bufferedEvent struct {
	ev       Event
	deadline time.Time
}

// NewTracker builds a tracker. window bounds how long an out-of-order
// event waits for its message before being discarded.
func NewTracker(st *store.Store, window time.Duration) *Tracker {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Tracker{st: st, window: window, pending: make(map[string][]bufferedEvent)}
}

// Run consumes events until ctx is cancelled, sweeping the buffer
// periodically for late-arriving messages and expired entries.
func (t *Tracker) Run(ctx context.Context, events <-chan Event) {
	interval := t.window / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.Handle(ev)
		case <-ticker.C:
			t.Sweep(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Handle processes one event: apply it if its message exists, otherwise
// buffer it for the bounded window.
func (t *Tracker) Handle(ev Event) {
	applied, err := t.apply(ev)
	if err != nil {
		if errors.Is(err, store.ErrNotConfirmable) {
			logger.Warn("confirmation_ignored", "hash", ev.ItemHash, "chain", ev.Chain)
			telemetry.IncConfirmation("ignored")
			return
		}
		if !store.IsNotFound(err) {
			logger.Error("confirmation_apply_failed", "hash", ev.ItemHash, "chain", ev.Chain, "error", err)
			return
		}
		t.mu.Lock()
		t.pending[ev.ItemHash] = append(t.pending[ev.ItemHash], bufferedEvent{ev: ev, deadline: time.Now().Add(t.window)})
		t.mu.Unlock()
		telemetry.IncConfirmation("buffered")
		return
	}
	if applied {
		telemetry.IncConfirmation("matched")
	} else {
		// repeat confirmation on the same chain
		telemetry.IncConfirmation("duplicate")
	}
}

// apply appends the confirmation record and flips the message status.
// Returns store.IsNotFound-matching error when the message is not yet
// ingested, and store.ErrNotConfirmable when the persisted record is a
// rejection audit entry or still pending.
func (t *Tracker) apply(ev Event) (bool, error) {
	m, err := t.st.GetMessage(ev.ItemHash)
	if err != nil {
		return false, err
	}
	if m.Status != models.StatusAccepted && m.Status != models.StatusConfirmed {
		return false, store.ErrNotConfirmable
	}
	added, err := t.st.AppendConfirmation(&models.ConfirmationRecord{
		ItemHash: ev.ItemHash,
		Chain:    ev.Chain,
		Height:   ev.Height,
		TxRef:    ev.TxRef,
	})
	if err != nil {
		return false, err
	}
	if err := t.st.MarkConfirmed(ev.ItemHash); err != nil {
		return false, err
	}
	if added {
		logger.Info("message_confirmed", "hash", ev.ItemHash, "chain", ev.Chain, "height", ev.Height)
	}
	return added, nil
}

// Sweep retries buffered events whose message may have arrived and
// discards entries past their deadline with a logged miss.
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	snapshot := t.pending
	t.pending = make(map[string][]bufferedEvent)
	t.mu.Unlock()

	for hash, evs := range snapshot {
		for _, be := range evs {
			applied, err := t.apply(be.ev)
			if err == nil {
				if applied {
					telemetry.IncConfirmation("matched")
				} else {
					telemetry.IncConfirmation("duplicate")
				}
				continue
			}
			if errors.Is(err, store.ErrNotConfirmable) {
				logger.Warn("confirmation_ignored", "hash", hash, "chain", be.ev.Chain)
				telemetry.IncConfirmation("ignored")
				continue
			}
			if !store.IsNotFound(err) {
				logger.Error("confirmation_sweep_failed", "hash", hash, "error", err)
				continue
			}
			if now.After(be.deadline) {
				// message never arrived inside the window
				logger.Warn("confirmation_miss", "hash", hash, "chain", be.ev.Chain)
				telemetry.IncConfirmation("miss")
				continue
			}
			t.mu.Lock()
			t.pending[hash] = append(t.pending[hash], be)
			t.mu.Unlock()
		}
	}
}

// PendingCount reports buffered events awaiting their message.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, evs := range t.pending {
		n += len(evs)
	}
	return n
}
