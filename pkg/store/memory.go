package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sentineld/sentineld/pkg/types"
)

// Memory is an in-process Store implementation used by component unit
// tests (audit, tools, memory, gateway) that run without a Postgres
// instance. Production boot always uses Postgres; Memory exists purely as
// a test double.
type Memory struct {
	mu            sync.Mutex
	audit         []types.AuditEntry
	tasks         map[string]types.Task
	memories      []types.MemoryRecord
	evaluations   []types.SelfEvaluation
	entities      map[string]types.GraphEntity
	relationships []types.GraphRelationship
	marketplace   map[string]types.MarketplaceTool
	execed        []struct {
		task   types.Task
		result types.TaskResult
	}
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[string]types.Task),
		entities:    make(map[string]types.GraphEntity),
		marketplace: make(map[string]types.MarketplaceTool),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) AppendAudit(_ context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.SequenceNumber = int64(len(m.audit)) + 1
	m.audit = append(m.audit, entry)
	return entry, nil
}

func (m *Memory) MaxSequence(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.audit)), nil
}

func (m *Memory) AllAudit(context.Context) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out, nil
}

func (m *Memory) RecentAudit(_ context.Context, n int) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.audit) - n
	if start < 0 {
		start = 0
	}
	out := make([]types.AuditEntry, len(m.audit)-start)
	copy(out, m.audit[start:])
	return out, nil
}

func (m *Memory) AuditByActor(_ context.Context, actor string, n int) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.AuditEntry
	for _, e := range m.audit {
		if e.Actor == actor {
			matched = append(matched, e)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched, nil
}

func (m *Memory) AuditByDateRange(_ context.Context, start, end time.Time, n int) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.AuditEntry
	for _, e := range m.audit {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			matched = append(matched, e)
			if len(matched) >= n {
				break
			}
		}
	}
	return matched, nil
}

func (m *Memory) CountAudit(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.audit)), nil
}

// TamperRow mutates a persisted audit row in place for integrity tests,
// simulating an external change to the underlying table.
func (m *Memory) TamperRow(sequenceNumber int64, mutate func(*types.AuditEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.audit {
		if m.audit[i].SequenceNumber == sequenceNumber {
			mutate(&m.audit[i])
			return
		}
	}
}

func (m *Memory) SaveTask(_ context.Context, task types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *Memory) LoadTask(_ context.Context, id string) (types.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok, nil
}

func (m *Memory) LoadAbandonedTasks(context.Context) ([]types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Task
	for _, t := range m.tasks {
		if t.StartedAt != nil && t.CompletedAt == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RecordExecution(_ context.Context, task types.Task, result types.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execed = append(m.execed, struct {
		task   types.Task
		result types.TaskResult
	}{task, result})
	return nil
}

// ExecutionCount reports how many RecordExecution calls have been made.
func (m *Memory) ExecutionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.execed)
}

func (m *Memory) SaveMemory(_ context.Context, rec types.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("mem-%d", len(m.memories)+1)
	}
	m.memories = append(m.memories, rec)
	return nil
}

func (m *Memory) RecentMemories(_ context.Context, namespace string, n int) ([]types.MemoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.MemoryRecord
	for i := len(m.memories) - 1; i >= 0 && len(matched) < n; i-- {
		if m.memories[i].Namespace == namespace {
			matched = append(matched, m.memories[i])
		}
	}
	return matched, nil
}

func (m *Memory) SaveEvaluation(_ context.Context, eval types.SelfEvaluation) (types.SelfEvaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eval.ID = int64(len(m.evaluations)) + 1
	m.evaluations = append(m.evaluations, eval)
	return eval, nil
}

func (m *Memory) RecentEvaluations(_ context.Context, n int) ([]types.SelfEvaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SelfEvaluation
	for i := len(m.evaluations) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.evaluations[i])
	}
	return out, nil
}

func (m *Memory) UpsertEntity(_ context.Context, entity types.GraphEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entity.ID] = entity
	return nil
}

func (m *Memory) UpsertRelationship(_ context.Context, rel types.GraphRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rel.ID == "" {
		rel.ID = fmt.Sprintf("rel-%d", len(m.relationships)+1)
	}
	for i, r := range m.relationships {
		if r.ID == rel.ID {
			m.relationships[i] = rel
			return nil
		}
	}
	m.relationships = append(m.relationships, rel)
	return nil
}

func (m *Memory) RelationshipsFrom(_ context.Context, entityID string) ([]types.GraphRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.GraphRelationship
	for _, r := range m.relationships {
		if r.FromID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SaveMarketplaceTool(_ context.Context, tool types.MarketplaceTool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketplace[tool.Name] = tool
	return nil
}

func (m *Memory) ListMarketplaceTools(_ context.Context) ([]types.MarketplaceTool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.marketplace))
	for name := range m.marketplace {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]types.MarketplaceTool, 0, len(names))
	for _, name := range names {
		out = append(out, m.marketplace[name])
	}
	return out, nil
}
