package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lumacrm/luma/modules/automation/domain/ports"
	"github.com/lumacrm/luma/modules/automation/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type WorkflowPGStore struct {
	pool pgBeginner
}

func NewWorkflowPGStore(pool pgBeginner) ports.WorkflowStore {
	return &WorkflowPGStore{pool: pool}
}

func retriableRead(err error) bool {
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

const workflowColumns = `
  id::text, tenant_id::text, name, sub_module_code, trigger_event,
  COALESCE(condition_expr, ''), recipient_id::text,
  COALESCE(message_template, ''), enabled
`

func scanWorkflow(row pgx.Row) (types.Workflow, error) {
	var wf types.Workflow
	if err := row.Scan(
		&wf.ID, &wf.TenantID, &wf.Name, &wf.SubModuleCode, &wf.TriggerEvent,
		&wf.ConditionExpr, &wf.RecipientID, &wf.MessageTemplate, &wf.Enabled,
	); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *WorkflowPGStore) InsertWorkflow(ctx context.Context, wf types.Workflow) (types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Workflow{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, wf.TenantID); err != nil {
		return types.Workflow{}, err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO workflows (
  id, tenant_id, name, sub_module_code, trigger_event,
  condition_expr, recipient_id, message_template, enabled
) VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7::uuid, $8, $9)
`, wf.ID, wf.TenantID, wf.Name, wf.SubModuleCode, wf.TriggerEvent,
		wf.ConditionExpr, wf.RecipientID, wf.MessageTemplate, wf.Enabled); err != nil {
		return types.Workflow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *WorkflowPGStore) ListWorkflows(ctx context.Context, tenantID string) ([]types.Workflow, error) {
	out, err := s.listWorkflowsOnce(ctx, tenantID, `tenant_id = $1::uuid`, tenantID)
	if err != nil && retriableRead(err) {
		out, err = s.listWorkflowsOnce(ctx, tenantID, `tenant_id = $1::uuid`, tenantID)
	}
	return out, err
}

func (s *WorkflowPGStore) ListEnabledForTrigger(ctx context.Context, tenantID string, subModuleCode string, triggerEvent string) ([]types.Workflow, error) {
	const predicate = `tenant_id = $1::uuid AND sub_module_code = $2 AND trigger_event = $3 AND enabled`
	out, err := s.listWorkflowsOnce(ctx, tenantID, predicate, tenantID, subModuleCode, triggerEvent)
	if err != nil && retriableRead(err) {
		out, err = s.listWorkflowsOnce(ctx, tenantID, predicate, tenantID, subModuleCode, triggerEvent)
	}
	return out, err
}

func (s *WorkflowPGStore) listWorkflowsOnce(ctx context.Context, tenantID string, predicate string, args ...any) ([]types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+workflowColumns+`
FROM workflows
WHERE `+predicate+`
ORDER BY name ASC
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WorkflowPGStore) FindWorkflow(ctx context.Context, tenantID string, workflowID string) (types.Workflow, error) {
	wf, err := s.findWorkflowOnce(ctx, tenantID, workflowID)
	if err != nil && retriableRead(err) {
		wf, err = s.findWorkflowOnce(ctx, tenantID, workflowID)
	}
	return wf, err
}

func (s *WorkflowPGStore) findWorkflowOnce(ctx context.Context, tenantID string, workflowID string) (types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Workflow{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return types.Workflow{}, err
	}

	wf, err := scanWorkflow(tx.QueryRow(ctx, `
SELECT `+workflowColumns+`
FROM workflows
WHERE tenant_id = $1::uuid AND id = $2::uuid
`, tenantID, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Workflow{}, ports.ErrWorkflowNotFound
		}
		return types.Workflow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *WorkflowPGStore) UpdateWorkflow(ctx context.Context, wf types.Workflow) (types.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Workflow{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, wf.TenantID); err != nil {
		return types.Workflow{}, err
	}

	tag, err := tx.Exec(ctx, `
UPDATE workflows
SET name = $3, sub_module_code = $4, trigger_event = $5,
    condition_expr = $6, recipient_id = $7::uuid, message_template = $8, enabled = $9
WHERE tenant_id = $1::uuid AND id = $2::uuid
`, wf.TenantID, wf.ID, wf.Name, wf.SubModuleCode, wf.TriggerEvent,
		wf.ConditionExpr, wf.RecipientID, wf.MessageTemplate, wf.Enabled)
	if err != nil {
		return types.Workflow{}, err
	}
	if tag.RowsAffected() == 0 {
		return types.Workflow{}, ports.ErrWorkflowNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *WorkflowPGStore) DeleteWorkflow(ctx context.Context, tenantID string, workflowID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM workflows
WHERE tenant_id = $1::uuid AND id = $2::uuid
`, tenantID, workflowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrWorkflowNotFound
	}

	return tx.Commit(ctx)
}
