package governance

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/types"
)

func TestDefaultMappingStrictestFirst(t *testing.T) {
	e := New(nil, nil, nil)
	ctx := context.Background()

	cases := []struct {
		risk     types.RiskLevel
		expected types.Authority
	}{
		{types.RiskCritical, types.AuthorityRequireHuman},
		{types.RiskHigh, types.AuthorityRequireApproval},
		{types.RiskMedium, types.AuthorityLogOnly},
		{types.RiskLow, types.AuthorityAutoApprove},
	}
	for _, c := range cases {
		authority, _, _, err := e.Resolve(ctx, Request{ToolName: "t", RiskLevel: c.risk})
		require.NoError(t, err)
		assert.Equal(t, c.expected, authority)
	}
}

func TestCriticalRequiresApprovalAlwaysRequiresHuman(t *testing.T) {
	e := New(nil, nil, nil)
	authority, _, _, err := e.Resolve(context.Background(), Request{
		ToolName: "wire-transfer", RiskLevel: types.RiskCritical, RequiresApproval: true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorityRequireHuman, authority)
}

func TestValueThresholdEscalation(t *testing.T) {
	threshold := 1000.0
	table := DefaultTable()
	table[types.RiskHigh] = types.GovernancePolicy{
		RiskLevel: types.RiskHigh, Authority: types.AuthorityRequireApproval,
		AuditRequired: true, MaxAutoApproveValue: &threshold,
	}
	e := New(table, nil, nil)

	value := 1500.0
	authority, auditRequired, reason, err := e.Resolve(context.Background(), Request{
		ToolName: "send-payment", RiskLevel: types.RiskHigh, EstimatedValue: &value,
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorityRequireHuman, authority)
	assert.True(t, strings.Contains(reason, "Value threshold exceeded"))
	assert.True(t, auditRequired)

	log := e.DecisionLog()
	require.Len(t, log, 1)
	assert.Contains(t, log[0].Reason, "Value threshold exceeded")
}

func TestCanAutoExecute(t *testing.T) {
	assert.True(t, CanAutoExecute(types.AuthorityAutoApprove))
	assert.True(t, CanAutoExecute(types.AuthorityLogOnly))
	assert.False(t, CanAutoExecute(types.AuthorityRequireApproval))
	assert.False(t, CanAutoExecute(types.AuthorityRequireHuman))
}

type restrictiveOnlyPolicy struct{}

func (restrictiveOnlyPolicy) Eval(_ context.Context, _ Request, resolved types.Authority) (types.Authority, string, error) {
	return types.AuthorityAutoApprove, "attempted relax", nil
}

func TestSupplementaryPolicyCannotRelaxAuthority(t *testing.T) {
	e := New(nil, restrictiveOnlyPolicy{}, nil)
	authority, _, _, err := e.Resolve(context.Background(), Request{ToolName: "t", RiskLevel: types.RiskCritical})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorityRequireHuman, authority)
}

func TestAuditRequiredComesFromPolicyNotAuthority(t *testing.T) {
	table := DefaultTable()
	table[types.RiskLow] = types.GovernancePolicy{
		RiskLevel: types.RiskLow, Authority: types.AuthorityAutoApprove, AuditRequired: true,
	}
	e := New(table, nil, nil)

	authority, auditRequired, _, err := e.Resolve(context.Background(), Request{ToolName: "t", RiskLevel: types.RiskLow})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorityAutoApprove, authority)
	assert.True(t, auditRequired, "custom policy overriding low risk's AuditRequired must not be silently ignored")
}

func TestDecisionLogHalvesOnOverflow(t *testing.T) {
	e := New(nil, nil, nil)
	for i := 0; i < decisionLogCap+10; i++ {
		_, _, _, err := e.Resolve(context.Background(), Request{ToolName: "t", RiskLevel: types.RiskLow})
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(e.DecisionLog()), decisionLogCap)
	// The (cap+1)th append halves the log to cap/2+1 entries; the last 9
	// appends then bring it to cap/2+10.
	assert.Len(t, e.DecisionLog(), decisionLogCap/2+10)
}
