package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sentineld/sentineld/pkg/types"
)

// Postgres is the default Store implementation, grounded on the teacher's
// sqlx-based repository style. Table layout follows spec.md §6: tasks,
// memories, execution_log, self_evaluations, audit_trail, graph_entities,
// graph_relationships, marketplace_tools.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to a Postgres DSN and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// Ping satisfies Pinger for the "database" health probe.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type auditRow struct {
	ID             string    `db:"id"`
	SequenceNumber int64     `db:"sequence_number"`
	Timestamp      time.Time `db:"timestamp"`
	Actor          string    `db:"actor"`
	Action         string    `db:"action"`
	Target         string    `db:"target"`
	Details        []byte    `db:"details"`
	PreviousHash   string    `db:"previous_hash"`
	Hash           string    `db:"hash"`
}

// AppendAudit inserts one row inside a serializable transaction that also
// computes the next sequence number, so concurrent callers cannot observe
// or assign the same number.
func (p *Postgres) AppendAudit(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var max sql.NullInt64
	if err := tx.GetContext(ctx, &max, `SELECT MAX(sequence_number) FROM audit_trail`); err != nil {
		return types.AuditEntry{}, fmt.Errorf("store: max sequence: %w", err)
	}
	entry.SequenceNumber = max.Int64 + 1
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	details, err := types.Canonical(entry.Details)
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("store: canonicalize details: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_trail (id, sequence_number, timestamp, actor, action, target, details, previous_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.SequenceNumber, entry.Timestamp, entry.Actor, entry.Action, entry.Target,
		details, entry.PreviousHash, entry.Hash,
	)
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("store: insert audit row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.AuditEntry{}, fmt.Errorf("store: commit: %w", err)
	}
	return entry, nil
}

// MaxSequence returns the highest persisted sequence number, or 0 if empty.
func (p *Postgres) MaxSequence(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := p.db.GetContext(ctx, &max, `SELECT MAX(sequence_number) FROM audit_trail`); err != nil {
		return 0, fmt.Errorf("store: max sequence: %w", err)
	}
	return max.Int64, nil
}

// AllAudit returns every row in ascending sequence order, for verifyChain.
func (p *Postgres) AllAudit(ctx context.Context) ([]types.AuditEntry, error) {
	var rows []auditRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM audit_trail ORDER BY sequence_number ASC`); err != nil {
		return nil, fmt.Errorf("store: select all audit: %w", err)
	}
	return decodeAuditRows(rows)
}

// RecentAudit fetches the n most recent rows, descending, then reverses so
// the result is returned in ascending sequence per spec.md §4.1.
func (p *Postgres) RecentAudit(ctx context.Context, n int) ([]types.AuditEntry, error) {
	var rows []auditRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_trail ORDER BY sequence_number DESC LIMIT $1`, n); err != nil {
		return nil, fmt.Errorf("store: select recent audit: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return decodeAuditRows(rows)
}

// AuditByActor fetches the n most recent rows for actor, ascending.
func (p *Postgres) AuditByActor(ctx context.Context, actor string, n int) ([]types.AuditEntry, error) {
	var rows []auditRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_trail WHERE actor = $1 ORDER BY sequence_number DESC LIMIT $2`, actor, n); err != nil {
		return nil, fmt.Errorf("store: select audit by actor: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return decodeAuditRows(rows)
}

// AuditByDateRange fetches up to n rows between start and end, ascending.
func (p *Postgres) AuditByDateRange(ctx context.Context, start, end time.Time, n int) ([]types.AuditEntry, error) {
	var rows []auditRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_trail WHERE timestamp >= $1 AND timestamp <= $2 ORDER BY sequence_number ASC LIMIT $3`,
		start, end, n); err != nil {
		return nil, fmt.Errorf("store: select audit by date range: %w", err)
	}
	return decodeAuditRows(rows)
}

// CountAudit returns the total number of audit rows.
func (p *Postgres) CountAudit(ctx context.Context) (int64, error) {
	var count int64
	if err := p.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_trail`); err != nil {
		return 0, fmt.Errorf("store: count audit: %w", err)
	}
	return count, nil
}

func decodeAuditRows(rows []auditRow) ([]types.AuditEntry, error) {
	out := make([]types.AuditEntry, 0, len(rows))
	for _, r := range rows {
		var details map[string]types.Value
		if len(r.Details) > 0 {
			v := types.Value{}
			if err := v.UnmarshalJSON(r.Details); err != nil {
				return nil, fmt.Errorf("store: decode details for sequence %d: %w", r.SequenceNumber, err)
			}
			if m, ok := v.AsMap(); ok {
				details = m
			}
		}
		out = append(out, types.AuditEntry{
			ID:             r.ID,
			SequenceNumber: r.SequenceNumber,
			Timestamp:      r.Timestamp,
			Actor:          r.Actor,
			Action:         r.Action,
			Target:         r.Target,
			Details:        details,
			PreviousHash:   r.PreviousHash,
			Hash:           r.Hash,
		})
	}
	return out, nil
}

type taskRow struct {
	ID          string     `db:"id"`
	Type        string     `db:"type"`
	Priority    int        `db:"priority"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	Payload     []byte     `db:"payload"`
	Role        string     `db:"assigned_role"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	Result      []byte     `db:"result"`
}

// SaveTask upserts a task row keyed by id.
func (p *Postgres) SaveTask(ctx context.Context, task types.Task) error {
	payload, err := types.Canonical(task.Payload)
	if err != nil {
		return fmt.Errorf("store: canonicalize payload: %w", err)
	}
	var result []byte
	if task.Result != nil {
		m := map[string]types.Value{
			"success":         types.Bool(task.Result.Success),
			"output":          task.Result.Output,
			"tokensUsed":      types.Number(float64(task.Result.TokensUsed)),
			"executionTimeMs": types.Number(float64(task.Result.ExecutionTimeMs)),
		}
		result, err = types.Canonical(m)
		if err != nil {
			return fmt.Errorf("store: canonicalize result: %w", err)
		}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, priority, title, description, payload, assigned_role, created_at, started_at, completed_at, result)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result`,
		task.ID, string(task.Type), int(task.Priority), task.Title, task.Description,
		payload, string(task.AssignedRole), task.CreatedAt, task.StartedAt, task.CompletedAt, result,
	)
	if err != nil {
		return fmt.Errorf("store: save task: %w", err)
	}
	return nil
}

// LoadTask fetches a task by id.
func (p *Postgres) LoadTask(ctx context.Context, id string) (types.Task, bool, error) {
	var row taskRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return types.Task{}, false, nil
	}
	if err != nil {
		return types.Task{}, false, fmt.Errorf("store: load task: %w", err)
	}
	return rowToTask(row), true, nil
}

// LoadAbandonedTasks returns tasks with started_at set but completed_at
// still null — left behind by a crash during execution, per spec.md §4.8.
func (p *Postgres) LoadAbandonedTasks(ctx context.Context) ([]types.Task, error) {
	var rows []taskRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM tasks WHERE started_at IS NOT NULL AND completed_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: load abandoned tasks: %w", err)
	}
	out := make([]types.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToTask(r))
	}
	return out, nil
}

func rowToTask(r taskRow) types.Task {
	var payload map[string]types.Value
	if len(r.Payload) > 0 {
		v := types.Value{}
		if err := v.UnmarshalJSON(r.Payload); err == nil {
			if m, ok := v.AsMap(); ok {
				payload = m
			}
		}
	}
	return types.Task{
		ID:           r.ID,
		Type:         types.TaskType(r.Type),
		Priority:     types.Priority(r.Priority),
		Title:        r.Title,
		Description:  r.Description,
		Payload:      payload,
		AssignedRole: types.AgentRole(r.Role),
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}

// RecordExecution appends one row to execution_log regardless of outcome,
// per spec.md §4.9: "every processed task is recorded... regardless of
// outcome."
func (p *Postgres) RecordExecution(ctx context.Context, task types.Task, result types.TaskResult) error {
	out, err := result.Output.MarshalJSON()
	if err != nil {
		return fmt.Errorf("store: marshal output: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO execution_log (task_id, success, output, tokens_used, execution_time_ms, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		task.ID, result.Success, out, result.TokensUsed, result.ExecutionTimeMs, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: record execution: %w", err)
	}
	return nil
}
