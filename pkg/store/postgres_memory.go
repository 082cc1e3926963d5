package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/pkg/types"
)

// SaveMemory inserts one consolidated memory record.
func (p *Postgres) SaveMemory(ctx context.Context, rec types.MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	content, err := types.Canonical(rec.Content)
	if err != nil {
		return fmt.Errorf("store: canonicalize memory content: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO memories (id, namespace, type, content, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rec.ID, rec.Namespace, rec.Type, content, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save memory: %w", err)
	}
	return nil
}

// RecentMemories returns up to n most recent records in a namespace,
// newest first.
func (p *Postgres) RecentMemories(ctx context.Context, namespace string, n int) ([]types.MemoryRecord, error) {
	type row struct {
		ID        string    `db:"id"`
		Namespace string    `db:"namespace"`
		Type      string    `db:"type"`
		Content   []byte    `db:"content"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []row
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, namespace, type, content, created_at FROM memories
		 WHERE namespace = $1 ORDER BY created_at DESC LIMIT $2`, namespace, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent memories: %w", err)
	}
	out := make([]types.MemoryRecord, 0, len(rows))
	for _, r := range rows {
		var content map[string]types.Value
		if len(r.Content) > 0 {
			v := types.Value{}
			if err := v.UnmarshalJSON(r.Content); err == nil {
				if m, ok := v.AsMap(); ok {
					content = m
				}
			}
		}
		out = append(out, types.MemoryRecord{
			ID:        r.ID,
			Namespace: r.Namespace,
			Type:      r.Type,
			Content:   content,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// SaveEvaluation inserts one self-evaluation row, assigning its id.
func (p *Postgres) SaveEvaluation(ctx context.Context, eval types.SelfEvaluation) (types.SelfEvaluation, error) {
	findings, err := types.Canonical(eval.Findings)
	if err != nil {
		return types.SelfEvaluation{}, fmt.Errorf("store: canonicalize findings: %w", err)
	}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO self_evaluations (summary, findings, created_at)
		VALUES ($1,$2,$3) RETURNING id`,
		eval.Summary, findings, eval.CreatedAt,
	).Scan(&eval.ID)
	if err != nil {
		return types.SelfEvaluation{}, fmt.Errorf("store: save evaluation: %w", err)
	}
	return eval, nil
}

// RecentEvaluations returns up to n most recent self-evaluations, newest first.
func (p *Postgres) RecentEvaluations(ctx context.Context, n int) ([]types.SelfEvaluation, error) {
	type row struct {
		ID        int64     `db:"id"`
		Summary   string    `db:"summary"`
		Findings  []byte    `db:"findings"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []row
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, summary, findings, created_at FROM self_evaluations ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent evaluations: %w", err)
	}
	out := make([]types.SelfEvaluation, 0, len(rows))
	for _, r := range rows {
		var findings map[string]types.Value
		if len(r.Findings) > 0 {
			v := types.Value{}
			if err := v.UnmarshalJSON(r.Findings); err == nil {
				if m, ok := v.AsMap(); ok {
					findings = m
				}
			}
		}
		out = append(out, types.SelfEvaluation{
			ID: r.ID, Summary: r.Summary, Findings: findings, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// UpsertEntity inserts or replaces a graph entity's attributes.
func (p *Postgres) UpsertEntity(ctx context.Context, entity types.GraphEntity) error {
	attrs, err := types.Canonical(entity.Attributes)
	if err != nil {
		return fmt.Errorf("store: canonicalize entity attributes: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO graph_entities (id, kind, attributes) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, attributes = EXCLUDED.attributes`,
		entity.ID, entity.Kind, attrs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert entity: %w", err)
	}
	return nil
}

// UpsertRelationship inserts or replaces a directed edge between two entities.
func (p *Postgres) UpsertRelationship(ctx context.Context, rel types.GraphRelationship) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO graph_relationships (id, from_id, to_id, kind) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET from_id = EXCLUDED.from_id, to_id = EXCLUDED.to_id, kind = EXCLUDED.kind`,
		rel.ID, rel.FromID, rel.ToID, rel.Kind,
	)
	if err != nil {
		return fmt.Errorf("store: upsert relationship: %w", err)
	}
	return nil
}

// RelationshipsFrom returns every edge outgoing from entityID.
func (p *Postgres) RelationshipsFrom(ctx context.Context, entityID string) ([]types.GraphRelationship, error) {
	type row struct {
		ID     string `db:"id"`
		FromID string `db:"from_id"`
		ToID   string `db:"to_id"`
		Kind   string `db:"kind"`
	}
	var rows []row
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, from_id, to_id, kind FROM graph_relationships WHERE from_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("store: relationships from %s: %w", entityID, err)
	}
	out := make([]types.GraphRelationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.GraphRelationship{ID: r.ID, FromID: r.FromID, ToID: r.ToID, Kind: r.Kind})
	}
	return out, nil
}

// SaveMarketplaceTool inserts or replaces one marketplace tool definition.
func (p *Postgres) SaveMarketplaceTool(ctx context.Context, tool types.MarketplaceTool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO marketplace_tools (name, description, category, requires_approval, risk_level)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			requires_approval = EXCLUDED.requires_approval,
			risk_level = EXCLUDED.risk_level`,
		tool.Name, tool.Description, tool.Category, tool.RequiresApproval, string(tool.RiskLevel),
	)
	if err != nil {
		return fmt.Errorf("store: save marketplace tool: %w", err)
	}
	return nil
}

// ListMarketplaceTools returns every registered marketplace tool definition.
func (p *Postgres) ListMarketplaceTools(ctx context.Context) ([]types.MarketplaceTool, error) {
	type row struct {
		Name             string `db:"name"`
		Description      string `db:"description"`
		Category         string `db:"category"`
		RequiresApproval bool   `db:"requires_approval"`
		RiskLevel        string `db:"risk_level"`
	}
	var rows []row
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM marketplace_tools ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("store: list marketplace tools: %w", err)
	}
	out := make([]types.MarketplaceTool, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.MarketplaceTool{
			Name: r.Name, Description: r.Description, Category: r.Category,
			RequiresApproval: r.RequiresApproval, RiskLevel: types.RiskLevel(r.RiskLevel),
		})
	}
	return out, nil
}
