// Package governance implements the Bounded-Autonomy Governance Engine
// (C3): risk→authority mapping with per-operation overrides and
// value-threshold escalation.
//
// The static mapping and decision log are new logic grounded directly on
// spec.md §4.3; the bounded-log-with-halving idiom follows spec.md §5's
// general bounded-memory policy. The optional Rego supplement is an
// enrichment from the wider pack (open-policy-agent/opa), resolved to be
// strictly more restrictive than the static mapping — see DESIGN.md.
package governance

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sentineld/sentineld/pkg/types"
)

const (
	decisionLogCap = 10_000
)

// Decision records one governance resolution.
type Decision struct {
	Tool          string
	RiskLevel     types.RiskLevel
	Authority     types.Authority
	Reason        string
	EstimatedValue *float64
}

// Request describes a proposed invocation to be governed.
type Request struct {
	ToolName         string
	RiskLevel        types.RiskLevel
	RequiresApproval bool
	EstimatedValue   *float64
}

// Policy is an optional supplementary hook (e.g. backed by Rego) consulted
// after the static mapping. It may only move the authority to a MORE
// restrictive value; a policy that tries to relax authority is ignored.
type Policy interface {
	Eval(ctx context.Context, req Request, resolved types.Authority) (types.Authority, string, error)
}

// Engine maps requests to authorities and keeps a bounded decision log.
type Engine struct {
	mu       sync.Mutex
	table    map[types.RiskLevel]types.GovernancePolicy
	log      []Decision
	policy   Policy
	logger   *zap.Logger
}

// DefaultTable is the strictest-first mapping from spec.md §4.3.
func DefaultTable() map[types.RiskLevel]types.GovernancePolicy {
	return map[types.RiskLevel]types.GovernancePolicy{
		types.RiskCritical: {RiskLevel: types.RiskCritical, Authority: types.AuthorityRequireHuman, AuditRequired: true},
		types.RiskHigh:      {RiskLevel: types.RiskHigh, Authority: types.AuthorityRequireApproval, AuditRequired: true},
		types.RiskMedium:    {RiskLevel: types.RiskMedium, Authority: types.AuthorityLogOnly, AuditRequired: true},
		types.RiskLow:       {RiskLevel: types.RiskLow, Authority: types.AuthorityAutoApprove, AuditRequired: false},
	}
}

// New constructs an Engine. policy may be nil (no supplementary hook).
func New(table map[types.RiskLevel]types.GovernancePolicy, policy Policy, logger *zap.Logger) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{table: table, policy: policy, logger: logger}
}

var authorityRank = map[types.Authority]int{
	types.AuthorityAutoApprove:     0,
	types.AuthorityLogOnly:         1,
	types.AuthorityRequireApproval: 2,
	types.AuthorityRequireHuman:    3,
}

func stricter(a, b types.Authority) types.Authority {
	if authorityRank[a] >= authorityRank[b] {
		return a
	}
	return b
}

func promoteOneStep(a types.Authority) types.Authority {
	switch a {
	case types.AuthorityAutoApprove:
		return types.AuthorityRequireApproval
	default:
		return types.AuthorityRequireHuman
	}
}

// Resolve maps req to an Authority, applying the requiresApproval override,
// value-threshold escalation, and any supplementary Policy, then appends a
// Decision to the bounded log. The returned bool is the policy's
// AuditRequired flag — callers must use it instead of re-deriving an audit
// decision from the authority, so an operator-supplied policy table's
// AuditRequired override (e.g. a custom YAML table auditing a risk level the
// default table doesn't) actually takes effect.
func (e *Engine) Resolve(ctx context.Context, req Request) (types.Authority, bool, string, error) {
	e.mu.Lock()
	policy, ok := e.table[req.RiskLevel]
	e.mu.Unlock()
	if !ok {
		policy = types.GovernancePolicy{RiskLevel: req.RiskLevel, Authority: types.AuthorityRequireHuman, AuditRequired: true}
	}

	authority := policy.Authority
	reason := fmt.Sprintf("risk level %s maps to %s", req.RiskLevel, authority)

	if req.RequiresApproval {
		floor := types.AuthorityRequireApproval
		if req.RiskLevel == types.RiskCritical {
			floor = types.AuthorityRequireHuman
		}
		if authorityRank[floor] > authorityRank[authority] {
			authority = floor
			reason = "tool requires approval"
		}
	}

	if policy.MaxAutoApproveValue != nil && req.EstimatedValue != nil && *req.EstimatedValue > *policy.MaxAutoApproveValue {
		promoted := promoteOneStep(authority)
		if authorityRank[promoted] > authorityRank[authority] {
			authority = promoted
			reason = "Value threshold exceeded"
		}
	}

	if e.policy != nil {
		suggested, policyReason, err := e.policy.Eval(ctx, req, authority)
		if err != nil {
			e.logger.Warn("governance: supplementary policy error, ignoring", zap.Error(err))
		} else {
			stricterAuthority := stricter(authority, suggested)
			if stricterAuthority != authority {
				authority = stricterAuthority
				reason = policyReason
			}
		}
	}

	e.appendDecision(Decision{
		Tool:           req.ToolName,
		RiskLevel:      req.RiskLevel,
		Authority:      authority,
		Reason:         reason,
		EstimatedValue: req.EstimatedValue,
	})

	e.logger.Info("governance decision",
		zap.String("tool", req.ToolName),
		zap.String("risk", string(req.RiskLevel)),
		zap.String("authority", string(authority)),
		zap.String("reason", reason),
	)

	return authority, policy.AuditRequired, reason, nil
}

// CanAutoExecute is true exactly when authority is autoApprove or logOnly.
func CanAutoExecute(a types.Authority) bool {
	return a == types.AuthorityAutoApprove || a == types.AuthorityLogOnly
}

func (e *Engine) appendDecision(d Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, d)
	if len(e.log) > decisionLogCap {
		half := len(e.log) / 2
		kept := make([]Decision, len(e.log)-half)
		copy(kept, e.log[half:])
		e.log = kept
	}
}

// DecisionLog returns a snapshot of the bounded decision log.
func (e *Engine) DecisionLog() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(e.log))
	copy(out, e.log)
	return out
}

// PolicyTable returns a snapshot of the current risk→policy mapping.
func (e *Engine) PolicyTable() map[types.RiskLevel]types.GovernancePolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[types.RiskLevel]types.GovernancePolicy, len(e.table))
	for k, v := range e.table {
		out[k] = v
	}
	return out
}

// SetPolicyTable replaces the risk→policy mapping, e.g. after a YAML reload.
func (e *Engine) SetPolicyTable(table map[types.RiskLevel]types.GovernancePolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = table
}
