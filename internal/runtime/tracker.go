package runtime

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// tracker counts in-flight signals per batch. A signal is added before it is
// enqueued and marked done after its processing, including the routing of
// every signal it produced, so a batch never drains early.
type tracker struct {
	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	started time.Time
	pending int
	outcome domain.Outcome
	seen    map[domain.Layer]struct{}
	done    chan struct{}
	closed  bool
}

func newTracker() *tracker {
	return &tracker{batches: make(map[string]*batch)}
}

func (t *tracker) open(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[batchID] = &batch{
		started: time.Now(),
		outcome: domain.Outcome{BatchID: batchID},
		seen:    make(map[domain.Layer]struct{}),
		done:    make(chan struct{}),
	}
}

func (t *tracker) forget(batchID string) {
	t.mu.Lock()
	delete(t.batches, batchID)
	t.mu.Unlock()
}

// add registers a signal about to be enqueued. Unknown batches are ignored:
// they belong to callers in another process.
func (t *tracker) add(batchID string) {
	t.mu.Lock()
	if b, ok := t.batches[batchID]; ok && !b.closed {
		b.pending++
	}
	t.mu.Unlock()
}

// retract undoes add for a signal that could not be enqueued.
func (t *tracker) retract(batchID string) {
	t.mu.Lock()
	if b, ok := t.batches[batchID]; ok && !b.closed && b.pending > 0 {
		b.pending--
	}
	t.mu.Unlock()
}

// done marks one signal as fully processed.
func (t *tracker) done(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok || b.closed {
		return
	}
	b.pending--
	if b.pending <= 0 {
		b.closed = true
		close(b.done)
	}
}

func (t *tracker) activated(batchID string, layer domain.Layer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return
	}
	if _, dup := b.seen[layer]; !dup {
		b.seen[layer] = struct{}{}
		b.outcome.LayersActivated = append(b.outcome.LayersActivated, layer)
	}
}

// result records a terminal activation. It reports false for untracked batches.
func (t *tracker) result(batchID string, r domain.TerminalResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if ok {
		b.outcome.Results = append(b.outcome.Results, r)
	}
	return ok
}

// failure records a terminal error. It reports false for untracked batches.
func (t *tracker) failure(batchID string, e domain.TerminalError) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if ok {
		b.outcome.Failures = append(b.outcome.Failures, e)
	}
	return ok
}

// wait blocks until the batch drains or ctx is done, then forgets the batch.
// When ctx ends first the outcome carries a deadline failure.
func (t *tracker) wait(ctx context.Context, batchID string) domain.Outcome {
	t.mu.Lock()
	b, ok := t.batches[batchID]
	t.mu.Unlock()
	if !ok {
		return domain.Outcome{BatchID: batchID}
	}

	timedOut := false
	select {
	case <-b.done:
	case <-ctx.Done():
		timedOut = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, batchID)
	out := b.outcome
	out.Results = slices.Clone(out.Results)
	out.Failures = slices.Clone(out.Failures)
	out.LayersActivated = slices.Clone(out.LayersActivated)
	out.Duration = time.Since(b.started)
	if timedOut {
		out.Failures = append(out.Failures, domain.TerminalError{
			Classification: domain.ClassDeadlineExceeded,
			Magnitude:      domain.ClassDeadlineExceeded.Magnitude(),
			Cause:          "request ended before the chain completed: " + ctx.Err().Error(),
		})
	}
	return out
}
