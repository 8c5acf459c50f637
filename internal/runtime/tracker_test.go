package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/strata/pkg/domain"
)

func TestTracker_DrainsWhenPendingReachesZero(t *testing.T) {
	tr := newTracker()
	tr.open("b")
	tr.add("b")
	tr.add("b")
	tr.activated("b", domain.L4)
	tr.activated("b", domain.L3)
	tr.activated("b", domain.L4)
	tr.done("b")
	tr.result("b", domain.TerminalResult{NeuronID: "coder", Layer: domain.L2, Content: "ok"})
	tr.done("b")

	out := tr.wait(context.Background(), "b")
	assert.Equal(t, "b", out.BatchID)
	assert.Equal(t, []domain.Layer{domain.L4, domain.L3}, out.LayersActivated)
	assert.True(t, out.Succeeded())
	assert.NoError(t, out.Err())
}

func TestTracker_RetractKeepsBatchOpen(t *testing.T) {
	tr := newTracker()
	tr.open("b")
	tr.add("b")
	tr.add("b")
	tr.retract("b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go tr.done("b")

	out := tr.wait(ctx, "b")
	assert.Empty(t, out.Failures)
}

func TestTracker_DeadlineSurfacesPartialOutcome(t *testing.T) {
	tr := newTracker()
	tr.open("b")
	tr.add("b")
	tr.activated("b", domain.L4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	out := tr.wait(ctx, "b")

	assert.Equal(t, []domain.Layer{domain.L4}, out.LayersActivated)
	if assert.Len(t, out.Failures, 1) {
		assert.Equal(t, domain.ClassDeadlineExceeded, out.Failures[0].Classification)
	}
	assert.ErrorIs(t, out.Err(), domain.ErrDeadlineExceeded)

	// The batch is gone; late signals are ignored.
	tr.done("b")
	assert.False(t, tr.result("b", domain.TerminalResult{}))
}

func TestTracker_UnknownBatch(t *testing.T) {
	tr := newTracker()
	tr.add("nope")
	tr.done("nope")
	assert.False(t, tr.failure("nope", domain.TerminalError{}))
	assert.Equal(t, domain.Outcome{BatchID: "nope"}, tr.wait(context.Background(), "nope"))
}
