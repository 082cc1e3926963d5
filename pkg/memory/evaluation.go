package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

// Evaluator persists self-evaluation passes produced by the orchestrator's
// introspection routines (spec.md's self-evaluation scheduled job).
type Evaluator struct {
	store store.EvaluationStore
}

// NewEvaluator constructs an Evaluator backed by st.
func NewEvaluator(st store.EvaluationStore) *Evaluator {
	return &Evaluator{store: st}
}

// Record persists one self-evaluation summary and its structured findings.
func (e *Evaluator) Record(ctx context.Context, summary string, findings map[string]types.Value) (types.SelfEvaluation, error) {
	eval, err := e.store.SaveEvaluation(ctx, types.SelfEvaluation{
		Summary:   summary,
		Findings:  findings,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return types.SelfEvaluation{}, fmt.Errorf("memory: record evaluation: %w", err)
	}
	return eval, nil
}

// Recent returns the n most recent self-evaluations, newest first.
func (e *Evaluator) Recent(ctx context.Context, n int) ([]types.SelfEvaluation, error) {
	evals, err := e.store.RecentEvaluations(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recent evaluations: %w", err)
	}
	return evals, nil
}
