package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/audit"
	"github.com/sentineld/sentineld/pkg/breaker"
	"github.com/sentineld/sentineld/pkg/governance"
	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

func newTestRegistry() (*Registry, *audit.Ledger, *store.Memory) {
	mem := store.NewMemory()
	ledger := audit.New(mem)
	gov := governance.New(nil, nil, nil)
	brk := breaker.New(breaker.DefaultConfig())
	return New(gov, brk, ledger), ledger, mem
}

func TestLowRiskToolAutoExecutesWithoutAudit(t *testing.T) {
	r, _, mem := newTestRegistry()
	err := r.Register(types.Tool{Name: "echo", RiskLevel: types.RiskLow}, nil,
		func(ctx context.Context, input types.Value) types.ToolResult {
			return types.ToolResult{Success: true, Data: input}
		}, 1000)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), InvokeRequest{ToolName: "echo", AgentID: "agent1", Input: types.String("hi")})
	assert.True(t, result.Success)
	count, _ := mem.CountAudit(context.Background())
	assert.EqualValues(t, 0, count)
}

func TestHighRiskRequiringApprovalNeverExecutes(t *testing.T) {
	r, _, mem := newTestRegistry()
	executed := false
	err := r.Register(types.Tool{Name: "wire", RiskLevel: types.RiskHigh}, nil,
		func(ctx context.Context, input types.Value) types.ToolResult {
			executed = true
			return types.ToolResult{Success: true}
		}, 1000)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), InvokeRequest{ToolName: "wire", AgentID: "agent1", Input: types.Null()})
	assert.False(t, result.Success)
	assert.False(t, executed)
	count, _ := mem.CountAudit(context.Background())
	assert.EqualValues(t, 1, count)
}

func TestUnknownToolFails(t *testing.T) {
	r, _, _ := newTestRegistry()
	result := r.Invoke(context.Background(), InvokeRequest{ToolName: "nope"})
	assert.False(t, result.Success)
}

func TestDuplicateRegistrationErrors(t *testing.T) {
	r, _, _ := newTestRegistry()
	exec := func(ctx context.Context, input types.Value) types.ToolResult { return types.ToolResult{Success: true} }
	require.NoError(t, r.Register(types.Tool{Name: "dup", RiskLevel: types.RiskLow}, nil, exec, 1000))
	err := r.Register(types.Tool{Name: "dup", RiskLevel: types.RiskLow}, nil, exec, 1000)
	assert.Error(t, err)
}

func TestBreakerOpenShortCircuitsExecution(t *testing.T) {
	r, _, _ := newTestRegistry()
	executed := false
	require.NoError(t, r.Register(types.Tool{Name: "flaky", RiskLevel: types.RiskLow}, nil,
		func(ctx context.Context, input types.Value) types.ToolResult {
			executed = true
			return types.ToolResult{Success: false, Error: "boom"}
		}, 1000))

	for i := 0; i < 5; i++ {
		r.Invoke(context.Background(), InvokeRequest{ToolName: "flaky", AgentID: "a"})
	}
	executed = false
	result := r.Invoke(context.Background(), InvokeRequest{ToolName: "flaky", AgentID: "a"})
	assert.False(t, result.Success)
	assert.Equal(t, "breaker open", result.Error)
	assert.False(t, executed)
}
