// Package types holds the data model shared across every subsystem of the
// daemon: tasks, roles, tools, audit entries, breaker state, health results,
// scheduled jobs, bus messages and governance policy. Keeping these in one
// leaf package avoids import cycles between the subsystems that reference
// them (orchestrator, scheduler, governance, audit, breaker, bus, health).
package types

import "time"

// Priority orders tasks in the scheduler's queue. Lower numeric value sorts
// first; critical strictly dominates high, high dominates medium, and so on.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskType is a closed enum of routable task kinds. routeTask performs a
// total lookup over this enum; unknown values route to the orchestrator's
// direct-execution path.
type TaskType string

const (
	TaskMessagingInbound  TaskType = "messaging_inbound"
	TaskSelfEvaluation    TaskType = "self_evaluation"
	TaskSyncPulse         TaskType = "sync_pulse"
	TaskMemoryConsolidate TaskType = "memory_consolidation"
	TaskHealthCheck       TaskType = "health_check"
	TaskBreakerEvaluation TaskType = "breaker_evaluation"
	TaskDependencyAudit   TaskType = "dependency_audit"
	TaskIntrospection     TaskType = "introspection"
	TaskToolInvocation    TaskType = "tool_invocation"
	TaskDiagnostic        TaskType = "diagnostic"
)

// AgentRole is a closed enum; each value maps statically to a handler
// descriptor carrying its allowed tool names, its handler and a
// human-facing identity string. See pkg/orchestrator.RoleDescriptor.
type AgentRole string

const (
	RoleOrchestrator  AgentRole = "orchestrator"
	RoleDiagnostician AgentRole = "diagnostician"
	RoleMessenger     AgentRole = "messenger"
	RoleArchivist     AgentRole = "archivist"
	RoleSentinel      AgentRole = "sentinel"
)

// RiskLevel is the declared danger of a tool invocation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Authority is the governance decision for a proposed invocation.
type Authority string

const (
	AuthorityAutoApprove     Authority = "autoApprove"
	AuthorityLogOnly         Authority = "logOnly"
	AuthorityRequireApproval Authority = "requireApproval"
	AuthorityRequireHuman    Authority = "requireHuman"
)

// BreakerState mirrors the closed/open/halfOpen state machine of C2.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "halfOpen"
)

// HealthStatus is the verdict of a single probe.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// MessageKind distinguishes bus message intents.
type MessageKind string

const (
	MessageRequest   MessageKind = "request"
	MessageResponse  MessageKind = "response"
	MessageBroadcast MessageKind = "broadcast"
)

// Task is a unit of work dispatched by the orchestrator. Payload is an
// opaque key/value map of Values (see Value below), never a concrete Go
// struct, so new task types never require a schema change here.
type Task struct {
	ID           string
	Type         TaskType
	Priority     Priority
	Title        string
	Description  string
	Payload      map[string]Value
	AssignedRole AgentRole
	Dependencies map[string]struct{}
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Result       *TaskResult
	Cancelled    bool
}

// TaskResult is the outcome of executing a Task.
type TaskResult struct {
	Success         bool
	Output          Value
	TokensUsed      int
	ExecutionTimeMs int64
	SubTasksSpawned []string
	Errors          []string
}

// Tool describes a registered operation the core can invoke.
type Tool struct {
	Name             string
	Description      string
	Category         string
	InputSchema      []byte // raw OpenAPI-style JSON schema, compiled once at registration
	RequiresApproval bool
	RiskLevel        RiskLevel
}

// ToolResult is the outcome of a single tool invocation.
type ToolResult struct {
	Success  bool
	Data     Value
	Error    string
	Metadata map[string]Value
}

// AuditEntry is one row of the hash-chained ledger.
type AuditEntry struct {
	ID             string
	SequenceNumber int64
	Timestamp      time.Time
	Actor          string
	Action         string
	Target         string
	Details        map[string]Value
	PreviousHash   string
	Hash           string
}

// CircuitBreakerState is the externally observable snapshot of one breaker.
type CircuitBreakerState struct {
	OperationName string
	FailureCount  int
	LastFailureAt *time.Time
	State         BreakerState
	OpenedAt      *time.Time
	CooldownMs    int64
}

// HealthResult is the outcome of one probe run.
type HealthResult struct {
	Component string
	Status    HealthStatus
	LatencyMs int64
	Message   string
	Timestamp time.Time
}

// ScheduledJob is a named recurring task definition.
type ScheduledJob struct {
	ID         string
	Name       string
	TaskType   TaskType
	Priority   Priority
	IntervalMs int64
	LastRun    *time.Time
	NextRun    *time.Time
	Enabled    bool
	Payload    map[string]Value
}

// BusMessage is one entry in an actor's mailbox.
type BusMessage struct {
	ID          string
	FromActor   string
	ToActor     string // "*" denotes broadcast
	Kind        MessageKind
	Payload     map[string]Value
	Timestamp   time.Time
	TTLMs       int64
	InReplyTo   string
	Acknowledged bool
}

// MemoryRecord is one durable fact or observation consolidated out of the
// daemon's working state, namespaced so unrelated subsystems don't collide.
type MemoryRecord struct {
	ID        string
	Namespace string
	Type      string
	Content   map[string]Value
	CreatedAt time.Time
}

// SelfEvaluation is one self-assessment pass's summary and findings.
type SelfEvaluation struct {
	ID        int64
	Summary   string
	Findings  map[string]Value
	CreatedAt time.Time
}

// GraphEntity is one node in the daemon's relationship graph (e.g. a
// collaborator, a tool, an agent role).
type GraphEntity struct {
	ID         string
	Kind       string
	Attributes map[string]Value
}

// GraphRelationship is one directed edge between two graph entities.
type GraphRelationship struct {
	ID     string
	FromID string
	ToID   string
	Kind   string
}

// MarketplaceTool is one externally-sourced tool definition available for
// registration, pending the same approval gate as any other Tool.
type MarketplaceTool struct {
	Name             string
	Description      string
	Category         string
	RequiresApproval bool
	RiskLevel        RiskLevel
}

// GovernancePolicy is the per-risk-level authority mapping.
type GovernancePolicy struct {
	RiskLevel            RiskLevel
	Authority            Authority
	AuditRequired        bool
	MaxAutoApproveValue  *float64
}
