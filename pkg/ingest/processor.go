package ingest

import (
	"context"
	"sync"
	"time"

	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/resolver"
	"meshnode/pkg/telemetry"
	"meshnode/pkg/validator"
)

// Saver persists message records.
type Saver interface {
	SaveMessage(m *models.Message) error
}

// Admitter is the terminal dedup set. Admit marks a hash as fully
// committed; Seen reads membership without marking.
type Admitter interface {
	Admit(m *models.Message) (bool, error)
	Seen(hash string) (bool, error)
}

// Applier folds an accepted message into the derived state documents.
type Applier interface {
	Apply(m *models.Message, content []byte) error
}

// RetryPolicy bounds how often a deferred candidate is re-validated.
// Exhaustion converts Deferred into Rejected(unresolvable) so a stuck
// candidate cannot grow the backlog without bound.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy: 5 attempts, 1s doubling backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Processor is the ingestion entry point: it normalizes candidates from
// every delivery path and drives them through the validator, the dedup
// index, the aggregation engine and the persistence gateway, one logical
// unit per message. Candidates are isolated: one failure never affects
// another.
type Processor struct {
	queue     *Queue
	validator *validator.Validator
	index     Admitter
	engine    Applier
	st        Saver
	res       *resolver.Resolver
	pub       Publisher
	retry     RetryPolicy
	workers   int

	runCtx context.Context
	wg     sync.WaitGroup
}

// NewProcessor wires the pipeline. pub may be nil.
func NewProcessor(q *Queue, v *validator.Validator, ix Admitter, eng Applier, st Saver, res *resolver.Resolver, pub Publisher, retry RetryPolicy, workers int) *Processor {
	if pub == nil {
		pub = NopPublisher{}
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Processor{
		queue:     q,
		validator: v,
		index:     ix,
		engine:    eng,
		st:        st,
		res:       res,
		pub:       pub,
		retry:     retry,
		workers:   workers,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and the
// workers have drained.
func (p *Processor) Run(ctx context.Context) {
	p.runCtx = ctx
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case it, ok := <-p.queue.Out():
					if !ok {
						return
					}
					func(it *Item) {
						defer it.Done()
						c := it.Candidate
						out, err := p.Process(ctx, c.Raw, c.Source, c.Attempt)
						if err != nil {
							logger.Error("ingest_failed", "source", c.Source, "error", err)
							return
						}
						logger.Debug("ingest_done", "source", c.Source, "outcome", out.Classification.String(), "reason", out.Reason, "hash", out.Hash)
					}(it)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	p.wg.Wait()
}

// Submit enqueues a raw candidate from an asynchronous delivery path.
func (p *Processor) Submit(ctx context.Context, raw []byte, source models.Source) error {
	telemetry.SetQueueDepth(p.queue.Len())
	return p.queue.Enqueue(ctx, &Candidate{Raw: raw, Source: source})
}

// Process runs one candidate through the full pipeline and returns its
// classification. The API layer calls this synchronously; queue workers
// call it for gossip and chain-replay candidates. The returned error is an
// internal persistence failure, not a classification.
func (p *Processor) Process(ctx context.Context, raw []byte, source models.Source, attempt int) (models.Outcome, error) {
	m, err := Normalize(raw)
	if err != nil {
		logger.Info("candidate_unparsable", "source", source, "error", err)
		out := models.Outcome{Classification: models.Rejected, Reason: models.ReasonSchema}
		telemetry.IncIngested(string(source), out.Reason)
		return out, nil
	}

	// Cross-source duplicate suppression: a hash that already reached a
	// terminal accepted state is a no-op regardless of delivery path.
	if seen, err := p.index.Seen(m.ItemHash); err == nil && seen {
		out := models.Outcome{Classification: models.Accepted, Reason: models.ReasonDuplicate, Hash: m.ItemHash}
		telemetry.IncIngested(string(source), models.ReasonDuplicate)
		return out, nil
	}

	out, content := p.validator.Validate(ctx, m)
	switch out.Classification {
	case models.Deferred:
		if attempt+1 < p.retry.MaxAttempts {
			p.scheduleRetry(raw, source, attempt+1)
			telemetry.IncIngested(string(source), out.Reason)
			return out, nil
		}
		// retry budget exhausted: terminal rejection, recorded for audit
		p.res.Forget(m.ItemHash)
		out = models.Outcome{Classification: models.Rejected, Reason: models.ReasonUnresolvable, Hash: m.ItemHash}
		fallthrough
	case models.Rejected:
		p.res.Forget(m.ItemHash)
		telemetry.IncIngested(string(source), out.Reason)
		if err := p.auditRejection(m, out.Reason); err != nil {
			return out, err
		}
		return out, nil
	}

	// Accepted: persist and apply first, admit last. Admission is the
	// terminal marker behind the duplicate fast path, so it must only
	// happen once the commit is durable: admitting up front would turn a
	// failed commit into a permanently suppressed message. A redelivery
	// after a partial failure re-runs the idempotent save and merge.
	defer p.res.Forget(m.ItemHash)
	m.Status = models.StatusAccepted
	m.Outcome = models.Accepted.String()
	if err := p.st.SaveMessage(m); err != nil {
		return out, err
	}
	if err := p.engine.Apply(m, content); err != nil {
		return out, err
	}
	first, err := p.index.Admit(m)
	if err != nil {
		return out, err
	}
	if !first {
		// a concurrent delivery committed the same hash; both merges
		// were idempotent
		out = models.Outcome{Classification: models.Accepted, Reason: models.ReasonDuplicate, Hash: m.ItemHash}
		telemetry.IncIngested(string(source), models.ReasonDuplicate)
		return out, nil
	}
	telemetry.IncIngested(string(source), models.Accepted.String())
	logger.Info("message_accepted", "hash", m.ItemHash, "type", m.Type, "channel", m.Channel, "source", source)

	// best-effort re-broadcast; never affects the commit
	if err := p.pub.Publish(ctx, m); err != nil {
		logger.Debug("publish_failed", "hash", m.ItemHash, "error", err)
	}
	return out, nil
}

// auditRejection persists the rejected envelope with its reason so the
// decision can be audited. No aggregation happens for rejected messages.
func (p *Processor) auditRejection(m *models.Message, reason string) error {
	m.Status = models.StatusRejected
	m.Outcome = reason
	return p.st.SaveMessage(m)
}

// scheduleRetry re-queues a deferred candidate after a bounded backoff.
// The raw bytes are copied because the caller's buffer is pooled.
func (p *Processor) scheduleRetry(raw []byte, source models.Source, attempt int) {
	cp := append([]byte(nil), raw...)
	backoff := p.retry.BaseBackoff << (attempt - 1)
	if backoff > p.retry.MaxBackoff || backoff <= 0 {
		backoff = p.retry.MaxBackoff
	}
	telemetry.IncRetry()
	time.AfterFunc(backoff, func() {
		if p.runCtx != nil && p.runCtx.Err() != nil {
			return
		}
		if err := p.queue.TryEnqueue(&Candidate{Raw: cp, Source: source, Attempt: attempt}); err != nil {
			logger.Warn("retry_enqueue_failed", "source", source, "attempt", attempt, "error", err)
			// the retry budget is moot if the candidate cannot re-enter
			// the queue; close it out as a terminal rejection so it is
			// still visible in the audit trail
			m, nerr := Normalize(cp)
			if nerr != nil {
				return
			}
			p.res.Forget(m.ItemHash)
			telemetry.IncIngested(string(source), models.ReasonUnresolvable)
			if aerr := p.auditRejection(m, models.ReasonUnresolvable); aerr != nil {
				logger.Error("retry_audit_failed", "hash", m.ItemHash, "error", aerr)
			}
		}
	})
}
