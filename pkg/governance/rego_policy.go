package governance

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/sentineld/sentineld/pkg/types"
)

// RegoPolicy is a supplementary Policy backed by an operator-supplied Rego
// module. It is consulted after the static mapping and value-threshold
// escalation and can only ever move authority to a stricter value — see
// Engine.Resolve and DESIGN.md for the reasoning.
//
// The module is expected to define `data.sentineld.governance.authority`
// as a string (one of autoApprove/logOnly/requireApproval/requireHuman)
// and, optionally, `data.sentineld.governance.reason` as a string.
type RegoPolicy struct {
	query rego.PreparedEvalQuery
}

// NewRegoPolicy compiles module (Rego source text) once at construction.
func NewRegoPolicy(ctx context.Context, module string) (*RegoPolicy, error) {
	q, err := rego.New(
		rego.Query("data.sentineld.governance"),
		rego.Module("governance.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("governance: compile rego policy: %w", err)
	}
	return &RegoPolicy{query: q}, nil
}

// Eval implements Policy.
func (p *RegoPolicy) Eval(ctx context.Context, req Request, resolved types.Authority) (types.Authority, string, error) {
	input := map[string]any{
		"tool":             req.ToolName,
		"riskLevel":        string(req.RiskLevel),
		"requiresApproval": req.RequiresApproval,
		"resolvedAuthority": string(resolved),
	}
	if req.EstimatedValue != nil {
		input["estimatedValue"] = *req.EstimatedValue
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return resolved, "", fmt.Errorf("governance: eval rego policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return resolved, "", nil
	}
	obj, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return resolved, "", nil
	}
	authority := resolved
	if a, ok := obj["authority"].(string); ok && a != "" {
		authority = types.Authority(a)
	}
	reason, _ := obj["reason"].(string)
	if reason == "" {
		reason = "supplementary policy override"
	}
	return authority, reason, nil
}
