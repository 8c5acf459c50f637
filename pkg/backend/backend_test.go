package backend_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient returns a fixed completion or a scripted error sequence.
type fakeClient struct {
	mu    sync.Mutex
	errs  []error
	text  string
	usage domain.Usage
	calls int
}

func (f *fakeClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &ports.Completion{Text: f.text, Model: req.Model, Usage: f.usage}, nil
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMock_TriggerMatching(t *testing.T) {
	mock, err := backend.NewMock(map[domain.Layer][]backend.Rule{
		domain.L4: {
			{Trigger: "default", Response: "CONTENT: generic {{.Content}}"},
			{Trigger: "website", Response: "FORWARD_TO: web\nCONTENT: web plan for {{.Content}}"},
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	c, err := mock.Generate(ctx, backend.Request{Layer: domain.L4, Content: "Build a Website"})
	require.NoError(t, err)
	assert.Equal(t, "FORWARD_TO: web\nCONTENT: web plan for Build a Website", c.Text)
	assert.Equal(t, domain.BackendMock, c.Source)
	assert.Zero(t, c.Cost)

	// The default trigger only wins when nothing else matches, regardless of order.
	c, err = mock.Generate(ctx, backend.Request{Layer: domain.L4, Content: "Build X"})
	require.NoError(t, err)
	assert.Equal(t, "CONTENT: generic Build X", c.Text)

	// Layers absent from the table use the built-in defaults.
	c, err = mock.Generate(ctx, backend.Request{Layer: domain.L2, Content: "Build X"})
	require.NoError(t, err)
	assert.Contains(t, c.Text, "RESULT:")
}

func TestMock_Misconfigured(t *testing.T) {
	mock, err := backend.NewMock(map[domain.Layer][]backend.Rule{
		domain.L3: {{Trigger: "only-this", Response: "x"}},
	})
	require.NoError(t, err)

	_, err = mock.Generate(context.Background(), backend.Request{Layer: domain.L3, Content: "other"})
	assert.ErrorIs(t, err, domain.ErrMockMisconfigured)

	_, err = backend.NewMock(map[domain.Layer][]backend.Rule{
		domain.L3: {{Trigger: "default", Response: "{{.Broken"}},
	})
	assert.ErrorIs(t, err, domain.ErrMockMisconfigured)
}

func TestMode_Resolve(t *testing.T) {
	assert.Equal(t, backend.ModeReal, backend.ModeAuto.Resolve(true, "production"))
	assert.Equal(t, backend.ModeMock, backend.ModeAuto.Resolve(true, "development"))
	assert.Equal(t, backend.ModeMock, backend.ModeAuto.Resolve(false, "production"))
	assert.Equal(t, backend.ModeHybrid, backend.ModeHybrid.Resolve(false, ""))
}

func TestSelector_RequiresClientForReal(t *testing.T) {
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	_, err := backend.NewSelector(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	cfg.Mode = backend.ModeAuto
	s, err := backend.NewSelector(cfg, nil, backend.WithEnvironment("production"))
	require.NoError(t, err)
	assert.Equal(t, backend.ModeMock, s.Mode())

	cfg.Mode = "quantum"
	_, err = backend.NewSelector(cfg, nil)
	assert.Error(t, err)
}

func TestReal_CommitsUsage(t *testing.T) {
	client := &fakeClient{text: "CONTENT: ok", usage: domain.Usage{InputTokens: 1000, OutputTokens: 1000}}
	ledger := backend.NewLedger(backend.DefaultLimits())
	r := backend.NewReal(client, ledger, backend.WithModel("claude-3-haiku"))

	c, err := r.Generate(context.Background(), backend.Request{Layer: domain.L3, Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackendReal, c.Source)
	assert.InDelta(t, 0.00025+0.00125, c.Cost, 1e-9)

	stats := ledger.Stats()
	assert.InDelta(t, c.Cost, stats.Hour.Cost, 1e-9)
	assert.Zero(t, stats.Hour.Pending)
	assert.Equal(t, 1, stats.TotalCalls)
	require.Len(t, ledger.Entries(), 1)
	assert.Equal(t, 2000, ledger.Entries()[0].InputTokens+ledger.Entries()[0].OutputTokens)
}

func TestReal_ClassifiesFailures(t *testing.T) {
	ledger := backend.NewLedger(backend.DefaultLimits())
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"generic", errors.New("connection reset"), domain.ErrUpstreamFailure},
		{"timeout", context.DeadlineExceeded, domain.ErrUpstreamFailure},
		{"rate limited", domain.ErrRateLimited, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := backend.NewReal(&fakeClient{errs: []error{tt.err}}, ledger)
			_, err := r.Generate(context.Background(), backend.Request{Layer: domain.L3})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	r := backend.NewReal(&fakeClient{text: "   "}, ledger)
	_, err := r.Generate(context.Background(), backend.Request{Layer: domain.L3})
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
	assert.Zero(t, ledger.Stats().Hour.Pending, "failed calls must release their reservation")
}

func TestReal_Timeout(t *testing.T) {
	blocking := clientFunc(func(ctx context.Context, _ ports.CompletionRequest) (*ports.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := backend.NewReal(blocking, backend.NewLedger(backend.DefaultLimits()), backend.WithTimeout(20*time.Millisecond))
	_, err := r.Generate(context.Background(), backend.Request{Layer: domain.L2})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

type clientFunc func(context.Context, ports.CompletionRequest) (*ports.Completion, error)

func (f clientFunc) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	return f(ctx, req)
}

func TestHybrid_MandatoryFallback(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("503 overloaded")}, text: "CONTENT: real"}
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	s, err := backend.NewSelector(cfg, client)
	require.NoError(t, err)

	c, err := s.Generator().Generate(context.Background(), backend.Request{Layer: domain.L4, Content: "Build X"})
	require.NoError(t, err, "hybrid must never surface the first upstream failure")
	assert.Equal(t, domain.BackendMock, c.Source)
	assert.ErrorIs(t, c.FallbackReason, domain.ErrUpstreamFailure)

	c, err = s.Generator().Generate(context.Background(), backend.Request{Layer: domain.L4, Content: "Build X"})
	require.NoError(t, err)
	assert.Equal(t, domain.BackendReal, c.Source)
	assert.Equal(t, 2, client.Calls())
}

func TestHybrid_FallsBackAfterGenerationTimeout(t *testing.T) {
	blocking := clientFunc(func(ctx context.Context, _ ports.CompletionRequest) (*ports.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	s, err := backend.NewSelector(cfg, blocking)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c, err := s.Generator().Generate(ctx, backend.Request{Layer: domain.L4, Content: "Build X"})
	require.NoError(t, err, "an expired generation deadline must still be served by mock")
	assert.Equal(t, domain.BackendMock, c.Source)
	assert.ErrorIs(t, c.FallbackReason, domain.ErrUpstreamFailure)
	assert.Contains(t, c.Text, "Build X")
}

func TestHybrid_CancelledCallerGetsNoFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := clientFunc(func(context.Context, ports.CompletionRequest) (*ports.Completion, error) {
		cancel()
		return nil, fmt.Errorf("%w: connection reset", domain.ErrUpstreamFailure)
	})
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	s, err := backend.NewSelector(cfg, client)
	require.NoError(t, err)

	_, err = s.Generator().Generate(ctx, backend.Request{Layer: domain.L4, Content: "Build X"})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

func TestHybrid_MockMisconfigured(t *testing.T) {
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	cfg.MockRules = map[domain.Layer][]backend.Rule{domain.L4: {}}
	s, err := backend.NewSelector(cfg, &fakeClient{errs: []error{errors.New("down")}})
	require.NoError(t, err)

	_, err = s.Generator().Generate(context.Background(), backend.Request{Layer: domain.L4})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.ErrorIs(t, err, domain.ErrMockMisconfigured)
	assert.Equal(t, domain.ClassBackendUnavailable, domain.Classify(err))
}

func TestHybrid_BudgetCeilingFallsBackToMock(t *testing.T) {
	client := &fakeClient{text: "CONTENT: real", usage: domain.Usage{InputTokens: 1000, OutputTokens: 10000}}
	cfg := backend.DefaultConfig()
	cfg.Mode = backend.ModeHybrid
	cfg.MaxTokens = 10000
	cfg.Limits = backend.Limits{MaxCostPerHour: 1.0, MaxCostPerDay: 100, MaxTokensPerRequest: 10000, AlertThreshold: 0.8}
	s, err := backend.NewSelector(cfg, client)
	require.NoError(t, err)

	callCost := backend.PricingFor(backend.DefaultModel).Cost(client.usage)
	var realCalls int
	for i := 0; i < 20; i++ {
		c, err := s.Generator().Generate(context.Background(), backend.Request{Layer: domain.L3, Prompt: "design"})
		require.NoError(t, err)
		if c.Source == domain.BackendMock {
			assert.ErrorIs(t, c.FallbackReason, domain.ErrBudgetExceeded)
			break
		}
		realCalls++
	}

	require.Positive(t, realCalls)
	assert.Less(t, realCalls, 20, "the ceiling must eventually force mock")
	spent := s.Ledger().Stats().Hour.Cost
	assert.LessOrEqual(t, spent, 1.0+callCost)
	assert.Equal(t, realCalls, client.Calls())
}

func TestLedger_Monotonic(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ledger := backend.NewLedger(backend.Limits{MaxCostPerHour: 5, MaxCostPerDay: 50, AlertThreshold: 0.8}, backend.WithLedgerClock(clock))
	pricing := backend.Pricing{InputPer1K: 1, OutputPer1K: 1}
	ctx := context.Background()

	var last float64
	for i := 0; i < 4; i++ {
		res, err := ledger.Reserve(ctx, 1.0)
		require.NoError(t, err)
		res.Commit(ctx, domain.Usage{InputTokens: 500, OutputTokens: 500}, "m", pricing)
		cost := ledger.Stats().Hour.Cost
		assert.GreaterOrEqual(t, cost, last)
		last = cost
	}

	// 4.0 committed: a 1.5 reservation would exceed the 5.0 ceiling.
	_, err := ledger.Reserve(ctx, 1.5)
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)

	// Releasing leaves the committed total untouched.
	res, err := ledger.Reserve(ctx, 0.5)
	require.NoError(t, err)
	res.Release()
	res.Release()
	assert.InDelta(t, 4.0, ledger.Stats().Hour.Cost, 1e-9)
	assert.Zero(t, ledger.Stats().Hour.Pending)

	// Rollover resets the hourly window but not the daily one.
	now = now.Add(time.Hour)
	stats := ledger.Stats()
	assert.Zero(t, stats.Hour.Cost)
	assert.InDelta(t, 4.0, stats.Day.Cost, 1e-9)
}

func TestLedger_AlertThreshold(t *testing.T) {
	var alerts []domain.Window
	hooks := domain.Hooks{OnCostAlert: func(_ context.Context, e *domain.CostEvent) { alerts = append(alerts, e.Window) }}
	ctx := context.Background()

	warn := backend.NewLedger(backend.Limits{MaxCostPerHour: 1, AlertThreshold: 0.8}, backend.WithLedgerHooks(hooks))
	_, err := warn.Reserve(ctx, 0.85)
	require.NoError(t, err)
	_, err = warn.Reserve(ctx, 0.05)
	require.NoError(t, err)
	assert.Equal(t, []domain.Window{domain.WindowHour}, alerts, "alert fires once per window")

	block := backend.NewLedger(backend.Limits{MaxCostPerHour: 1, AlertThreshold: 0.8, BlockOnAlert: true})
	_, err = block.Reserve(ctx, 0.85)
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)
}

func TestLedger_ConcurrentReservations(t *testing.T) {
	ledger := backend.NewLedger(backend.Limits{MaxCostPerHour: 10, AlertThreshold: 0.99})
	pricing := backend.Pricing{InputPer1K: 1}
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Reserve(ctx, 1.0)
			if err != nil {
				return
			}
			res.Commit(ctx, domain.Usage{InputTokens: 1000}, "m", pricing)
			mu.Lock()
			accepted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, accepted, 10)
	assert.LessOrEqual(t, ledger.Stats().Hour.Cost, 10.0+1e-9)
}

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		name string
		text string
		want backend.Directives
	}{
		{
			name: "forward with content block",
			text: "FORWARD_TO: api, ui\nCONTENT: Design spec:\n- A\n- B",
			want: backend.Directives{Targets: []string{"api", "ui"}, Content: "Design spec:\n- A\n- B"},
		},
		{
			name: "result",
			text: "RESULT: Implementation complete\n```go\nfunc main() {}\n```",
			want: backend.Directives{Result: true, Content: "Implementation complete\n```go\nfunc main() {}\n```"},
		},
		{
			name: "plain text",
			text: "  just text  ",
			want: backend.Directives{Content: "just text"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.ParseDirectives(tt.text))
		})
	}
}
