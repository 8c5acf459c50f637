package observability_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	h := m.Hooks()
	ctx := context.Background()

	h.OnSignalSent(ctx, &domain.SignalEvent{NeuronID: "strategy", Direction: domain.Forward})
	h.OnSignalSent(ctx, &domain.SignalEvent{NeuronID: "strategy", Direction: domain.Forward})
	h.OnSignalProcessed(ctx, &domain.SignalEvent{NeuronID: "design", Direction: domain.Backward})
	h.OnSignalFailed(ctx, &domain.SignalEvent{NeuronID: "impl", Classification: domain.ClassDeadlineExceeded})
	h.OnGeneration(ctx, &domain.GenerationEvent{NeuronID: "impl", Source: domain.BackendMock, Degraded: true, Duration: 20 * time.Millisecond})
	h.OnCostRecorded(ctx, &domain.CostEvent{Stats: domain.CostStats{
		Hour: domain.WindowStats{Cost: 1.5},
		Day:  domain.WindowStats{Cost: 7.25},
	}})
	h.OnCostAlert(ctx, &domain.CostEvent{Window: domain.WindowHour})
	h.OnBreakerTransition(ctx, &domain.BreakerEvent{Name: "impl", From: "closed", To: "open"})
	h.OnPatternDetected(ctx, &domain.PatternEvent{NeuronID: "impl", Tag: domain.ClassDeadlineExceeded})

	assert.InDelta(t, 2, testutil.ToFloat64(m.SignalsSent.WithLabelValues("strategy", "forward")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SignalsProcessed.WithLabelValues("design", "backward")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SignalsFailed.WithLabelValues("impl", "deadline_exceeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BackendCalls.WithLabelValues("mock", "true")), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(m.CostDollars.WithLabelValues("hour")), 1e-9)
	assert.InDelta(t, 7.25, testutil.ToFloat64(m.CostDollars.WithLabelValues("day")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CostAlerts.WithLabelValues("hour")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("impl", "closed", "open")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LearningPatterns.WithLabelValues("impl", "deadline_exceeded")), 0)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.Hooks().OnSignalSent(context.Background(), &domain.SignalEvent{NeuronID: "strategy", Direction: domain.Forward})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `strata_signals_sent_total{direction="forward",neuron="strategy"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()
	a.Hooks().OnCostAlert(context.Background(), &domain.CostEvent{Window: domain.WindowDay})
	assert.InDelta(t, 0, testutil.ToFloat64(b.CostAlerts.WithLabelValues("day")), 0)
}
