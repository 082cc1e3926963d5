// Package orchestrator implements the Task Orchestrator (C8): holds the
// canonical task map, assigns a role, drives execution, and emits
// lifecycle events.
//
// Grounded on the teacher's system/core registry dispatch pattern (a
// name→module lookup backing Engine.Lookup/Register), generalized from
// "service module" to "role handler": the roles map passed to New takes
// spec.md §4.8/§9's AgentRole values to RoleDescriptors (a role with no
// entry falls back to the direct-execution path), replacing a class
// hierarchy with a plain map plus a small capability interface.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/types"
)

// Handler executes a task for the role it is registered under.
type Handler interface {
	Handle(ctx context.Context, task types.Task, allowedTools []string) types.TaskResult
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, task types.Task, allowedTools []string) types.TaskResult

func (f HandlerFunc) Handle(ctx context.Context, task types.Task, allowedTools []string) types.TaskResult {
	return f(ctx, task, allowedTools)
}

// RoleDescriptor is the static profile of one AgentRole: its identity, the
// tool names it may call, and its handler.
type RoleDescriptor struct {
	Role        types.AgentRole
	Identity    string
	AllowedTools []string
	Handler     Handler
}

// RouteFunc is a total function from TaskType to AgentRole; unknown types
// must route to RoleOrchestrator (the direct-execution path).
type RouteFunc func(t types.TaskType) types.AgentRole

// DefaultRouter is the routing table named in spec.md §4.8: a deterministic,
// single source of truth lookup. Unrecognized task types fall through to
// RoleOrchestrator's direct-execution path.
func DefaultRouter() RouteFunc {
	table := map[types.TaskType]types.AgentRole{
		types.TaskMessagingInbound:  types.RoleMessenger,
		types.TaskSelfEvaluation:    types.RoleDiagnostician,
		types.TaskSyncPulse:         types.RoleArchivist,
		types.TaskMemoryConsolidate: types.RoleArchivist,
		types.TaskHealthCheck:       types.RoleSentinel,
		types.TaskBreakerEvaluation: types.RoleSentinel,
		types.TaskDependencyAudit:   types.RoleSentinel,
		types.TaskIntrospection:     types.RoleDiagnostician,
		types.TaskToolInvocation:    types.RoleOrchestrator,
		types.TaskDiagnostic:        types.RoleDiagnostician,
	}
	return func(t types.TaskType) types.AgentRole {
		if role, ok := table[t]; ok {
			return role
		}
		return types.RoleOrchestrator
	}
}

// Orchestrator owns the canonical task map and drives execution.
type Orchestrator struct {
	mu     sync.RWMutex
	tasks  map[string]*types.Task
	roles  map[types.AgentRole]RoleDescriptor
	router RouteFunc
	events *events.Bus
}

// New constructs an Orchestrator. router defaults to DefaultRouter if nil.
func New(roles map[types.AgentRole]RoleDescriptor, router RouteFunc, eventBus *events.Bus) *Orchestrator {
	if router == nil {
		router = DefaultRouter()
	}
	return &Orchestrator{
		tasks:  make(map[string]*types.Task),
		roles:  roles,
		router: router,
		events: eventBus,
	}
}

// CreateTask creates a task in pending state with a fresh id and emits
// task:created.
func (o *Orchestrator) CreateTask(taskType types.TaskType, priority types.Priority, title, description string, payload map[string]types.Value) types.Task {
	task := types.Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Priority:    priority,
		Title:       title,
		Description: description,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}

	o.mu.Lock()
	o.tasks[task.ID] = &task
	o.mu.Unlock()

	o.emit("task:created", task)
	return task
}

// Submit registers a pre-built task (e.g. one the scheduler produced for a
// recurring job, carrying its own id) if it isn't already known, emitting
// task:created exactly once per id. Tasks created via CreateTask are
// already registered, so Submit is a no-op for them — this lets the
// scheduler's TaskRunner call Submit unconditionally before ExecuteTask
// regardless of which path produced the task.
func (o *Orchestrator) Submit(task types.Task) types.Task {
	o.mu.Lock()
	if existing, ok := o.tasks[task.ID]; ok {
		snapshot := *existing
		o.mu.Unlock()
		return snapshot
	}
	o.tasks[task.ID] = &task
	o.mu.Unlock()

	o.emit("task:created", task)
	return task
}

// RouteTask is a deterministic lookup from task to AgentRole.
func (o *Orchestrator) RouteTask(task types.Task) types.AgentRole {
	return o.router(task.Type)
}

// ExecuteTask sets startedAt, emits task:started, routes to a role,
// invokes its handler (or the orchestrator's own direct path for
// "system"/unmapped types), sets completedAt, and emits task:completed or
// task:failed. Handler panics and errors are both converted into a failing
// TaskResult; the task is marked complete either way, per spec.md §4.8.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string) (types.TaskResult, error) {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return types.TaskResult{}, fmt.Errorf("orchestrator: unknown task %s", taskID)
	}
	start := time.Now()
	task.StartedAt = &start
	role := o.router(task.Type)
	task.AssignedRole = role
	snapshot := *task
	o.mu.Unlock()

	o.emit("task:started", snapshot)

	result := o.dispatch(ctx, role, snapshot)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	o.mu.Lock()
	completed := time.Now()
	if !task.Cancelled {
		task.CompletedAt = &completed
	} else {
		// A task cancelled via the admin surface mid-handler still
		// receives its arriving result's timestamp bookkeeping, but the
		// result itself is discarded per spec.md §5.
		task.CompletedAt = &completed
		result = types.TaskResult{Success: false, Errors: []string{"cancelled"}}
	}
	task.Result = &result
	final := *task
	o.mu.Unlock()

	if result.Success {
		o.emit("task:completed", final)
	} else {
		o.emit("task:failed", final)
	}
	return result, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, role types.AgentRole, task types.Task) (result types.TaskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.TaskResult{Success: false, Errors: []string{fmt.Sprintf("handler panicked: %v", rec)}}
		}
	}()

	desc, ok := o.roles[role]
	if !ok || desc.Handler == nil {
		// Direct-execution path: the orchestrator itself handles "system"
		// task types with no allowed tools.
		return types.TaskResult{Success: true, Output: types.Null()}
	}
	return desc.Handler.Handle(ctx, task, desc.AllowedTools)
}

// Cancel marks a task cancelled via the admin surface without interrupting
// a running handler; a result that arrives afterward is discarded (the
// Open Question resolution recorded in DESIGN.md).
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[taskID]
	if !ok || task.StartedAt == nil {
		return false
	}
	task.Cancelled = true
	return true
}

// Get returns a snapshot of task by id.
func (o *Orchestrator) Get(taskID string) (types.Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return types.Task{}, false
	}
	return *task, true
}

// Abandoned returns every task with startedAt set but no completedAt — left
// behind by a crash during execution, reported on next boot per spec.md
// §4.8.
func (o *Orchestrator) Abandoned() []types.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []types.Task
	for _, t := range o.tasks {
		if t.StartedAt != nil && t.CompletedAt == nil {
			out = append(out, *t)
		}
	}
	return out
}

func (o *Orchestrator) emit(kind events.Kind, task types.Task) {
	if o.events == nil {
		return
	}
	o.events.Emit(kind, "orchestrator", map[string]types.Value{
		"taskId": types.String(task.ID),
		"type":   types.String(string(task.Type)),
		"role":   types.String(string(task.AssignedRole)),
	})
}
