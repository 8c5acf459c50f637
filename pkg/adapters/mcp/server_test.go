package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
)

type fakeEngine struct {
	outcome  domain.Outcome
	err      error
	deadline time.Time
	kinds    []domain.EntryKind
	limit    int
}

func (f *fakeEngine) Submit(ctx context.Context, content string) (domain.Outcome, error) {
	f.deadline, _ = ctx.Deadline()
	return f.outcome, f.err
}

func (f *fakeEngine) QueryMemory(_ context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	f.kinds, f.limit = kinds, limit
	return []domain.MemoryEntry{{NeuronID: neuronID, Kind: domain.KindLearning, Content: "lesson"}}, nil
}

func (f *fakeEngine) Costs() domain.CostStats { return domain.CostStats{} }

func (f *fakeEngine) Health() []domain.NeuronHealth {
	return []domain.NeuronHealth{{ID: "planner", Layer: domain.L4, State: domain.StateIdle}}
}

func (f *fakeEngine) Declarations() []domain.NeuronDeclaration {
	return []domain.NeuronDeclaration{{ID: "planner", Layer: "L4"}}
}

func TestSubmit_ReturnsOutcome(t *testing.T) {
	eng := &fakeEngine{outcome: domain.Outcome{BatchID: "b1", Results: []domain.TerminalResult{{NeuronID: "coder", Content: "done"}}}}
	s := NewServer(eng, "test", logging.NewNop())

	resp, err := s.handleSubmit(context.Background(), mcp.CallToolRequest{}, SubmitArgs{Content: "Build X", TimeoutSeconds: 2})
	require.NoError(t, err)
	assert.Equal(t, "b1", resp.Outcome.BatchID)
	assert.Empty(t, resp.Error)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), eng.deadline, time.Second)
}

func TestSubmit_TerminalErrorIsReported(t *testing.T) {
	terminal := &domain.TerminalError{Classification: domain.ClassUpstreamFailure, NeuronID: "planner", Layer: domain.L4}
	eng := &fakeEngine{outcome: domain.Outcome{BatchID: "b2", Failures: []domain.TerminalError{*terminal}}, err: terminal}
	s := NewServer(eng, "test", logging.NewNop())

	resp, err := s.handleSubmit(context.Background(), mcp.CallToolRequest{}, SubmitArgs{Content: "x"})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "upstream_failure")
	assert.Len(t, resp.Outcome.Failures, 1)
}

func TestSubmit_RejectsEmptyContent(t *testing.T) {
	s := NewServer(&fakeEngine{}, "test", logging.NewNop())
	_, err := s.handleSubmit(context.Background(), mcp.CallToolRequest{}, SubmitArgs{})
	assert.Error(t, err)
}

func TestQuery_FiltersAndCapsLimit(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer(eng, "test", logging.NewNop())

	resp, err := s.handleQuery(context.Background(), mcp.CallToolRequest{}, QueryArgs{NeuronID: "planner", Kind: "learning", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, []domain.EntryKind{domain.KindLearning}, eng.kinds)
	assert.Equal(t, maxQueryLimit, eng.limit)

	_, err = s.handleQuery(context.Background(), mcp.CallToolRequest{}, QueryArgs{NeuronID: "planner", Kind: "dream"})
	assert.Error(t, err)
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult((&fakeEngine{}).Health())
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var health []domain.NeuronHealth
	require.NoError(t, json.Unmarshal([]byte(text.Text), &health))
	assert.Equal(t, "planner", health[0].ID)
}
