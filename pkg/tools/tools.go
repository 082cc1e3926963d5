// Package tools implements the Tool Registry & Execution Wrapper (C7): a
// uniform, governed invocation pipeline — validate, govern, breaker-check,
// execute, record, audit — in front of every registered tool.
//
// The before/after wrapper shape is adapted from the teacher's
// infrastructure/resilience.CircuitBreaker.Execute (a function wrapped by
// beforeRequest/afterRequest hooks), generalized here to the full six-step
// protocol of spec.md §4.7. Input schemas are validated with
// getkin/kin-openapi's openapi3.Schema rather than hand-rolled reflection,
// per SPEC_FULL.md §7.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/time/rate"

	"github.com/sentineld/sentineld/pkg/audit"
	"github.com/sentineld/sentineld/pkg/breaker"
	"github.com/sentineld/sentineld/pkg/governance"
	"github.com/sentineld/sentineld/pkg/types"
)

// ExecuteFunc is a registered tool's implementation.
type ExecuteFunc func(ctx context.Context, input types.Value) types.ToolResult

// Registration is a tool plus its compiled schema and rate limiter.
type Registration struct {
	Tool    types.Tool
	Schema  *openapi3.Schema
	Execute ExecuteFunc
	limiter *rate.Limiter
}

// Registry holds every registered tool by unique name.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*Registration
	governance *governance.Engine
	breakers  *breaker.Registry
	ledger    *audit.Ledger
}

// New constructs a Registry wired to the governance engine, breaker
// registry and audit ledger it consults on every invocation.
func New(g *governance.Engine, b *breaker.Registry, l *audit.Ledger) *Registry {
	return &Registry{
		tools:      make(map[string]*Registration),
		governance: g,
		breakers:   b,
		ledger:     l,
	}
}

// defaultRatePerSecond bounds how often a single tool may be invoked, default 10/s
// with a burst of 10 — an ambient resilience concern (SPEC_FULL.md §7), not
// domain logic, so it applies uniformly unless overridden per call to
// Register.
const defaultRatePerSecond = 10

// Register adds tool to the registry. schemaJSON is the raw OpenAPI-style
// JSON schema for the tool's input, compiled once here. Registering the
// same name twice is an error.
func (r *Registry) Register(tool types.Tool, schemaJSON []byte, exec ExecuteFunc, ratePerSecond float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tools: %q already registered", tool.Name)
	}

	var schema *openapi3.Schema
	if len(schemaJSON) > 0 {
		schema = &openapi3.Schema{}
		if err := json.Unmarshal(schemaJSON, schema); err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", tool.Name, err)
		}
	}

	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	tool.InputSchema = schemaJSON
	r.tools[tool.Name] = &Registration{
		Tool:    tool,
		Schema:  schema,
		Execute: exec,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)),
	}
	return nil
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// InvokeRequest carries the caller's estimate of side-effect size and
// identity, consulted by governance.
type InvokeRequest struct {
	AgentID        string
	ToolName       string
	Input          types.Value
	Target         string
	EstimatedValue *float64
}

// Invoke runs the six-step governed invocation pipeline of spec.md §4.7.
func (r *Registry) Invoke(ctx context.Context, req InvokeRequest) types.ToolResult {
	reg, ok := r.Lookup(req.ToolName)
	if !ok {
		return types.ToolResult{Success: false, Error: "unknown tool"}
	}

	// Step 1: validate input against schema.
	if reg.Schema != nil {
		raw, err := req.Input.MarshalJSON()
		if err != nil {
			return types.ToolResult{Success: false, Error: "invalid input"}
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return types.ToolResult{Success: false, Error: "invalid input"}
		}
		if err := reg.Schema.VisitJSON(decoded); err != nil {
			return types.ToolResult{Success: false, Error: "invalid input"}
		}
	}

	// Step 2: governance.
	authority, auditRequired, reason, err := r.governance.Resolve(ctx, governance.Request{
		ToolName:         req.ToolName,
		RiskLevel:        reg.Tool.RiskLevel,
		RequiresApproval: reg.Tool.RequiresApproval,
		EstimatedValue:   req.EstimatedValue,
	})
	if err != nil {
		return types.ToolResult{Success: false, Error: "governance error"}
	}
	if !governance.CanAutoExecute(authority) {
		r.auditIfNeeded(ctx, true, req, authority, reason, false)
		return types.ToolResult{Success: false, Error: "approval required: " + string(authority)}
	}

	// Step 3: breaker check.
	if !r.breakers.CanExecute(req.ToolName) {
		return types.ToolResult{Success: false, Error: "breaker open"}
	}

	// Ambient rate limit, ahead of the actual side effect.
	if err := reg.limiter.Wait(ctx); err != nil {
		return types.ToolResult{Success: false, Error: "rate limited"}
	}

	// Step 4: execute, converting panics/errors to a failure result.
	result := r.safeExecute(ctx, reg, req.Input)

	// Step 5: record breaker observation.
	if result.Success {
		r.breakers.RecordSuccess(req.ToolName)
	} else {
		r.breakers.RecordFailure(req.ToolName)
	}

	// Step 6: audit if the resolved policy requires it.
	r.auditIfNeeded(ctx, auditRequired, req, authority, reason, result.Success)

	return result
}

func (r *Registry) safeExecute(ctx context.Context, reg *Registration, input types.Value) (result types.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", rec)}
		}
	}()
	return reg.Execute(ctx, input)
}

func (r *Registry) auditIfNeeded(ctx context.Context, required bool, req InvokeRequest, authority types.Authority, reason string, success bool) {
	if !required || r.ledger == nil {
		return
	}
	target := req.Target
	if target == "" {
		target = req.ToolName
	}
	details := map[string]types.Value{
		"authority": types.String(string(authority)),
		"reason":    types.String(reason),
		"success":   types.Bool(success),
	}
	_, err := r.ledger.Record(ctx, req.AgentID, req.ToolName, target, details)
	_ = err // a ledger write failure is fatal to the ledger's own caller,
	// not to a ToolResult already produced; see apperrors.ErrFatal.
}
