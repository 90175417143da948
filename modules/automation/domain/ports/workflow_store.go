package ports

import (
	"context"
	"errors"

	"github.com/lumacrm/luma/modules/automation/domain/types"
)

var ErrWorkflowNotFound = errors.New("automation: workflow not found")

type WorkflowStore interface {
	InsertWorkflow(ctx context.Context, wf types.Workflow) (types.Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string) ([]types.Workflow, error)
	FindWorkflow(ctx context.Context, tenantID string, workflowID string) (types.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf types.Workflow) (types.Workflow, error)
	DeleteWorkflow(ctx context.Context, tenantID string, workflowID string) error
	// ListEnabledForTrigger narrows to enabled workflows bound to one
	// (sub-module, trigger) pair; the engine calls this per event.
	ListEnabledForTrigger(ctx context.Context, tenantID string, subModuleCode string, triggerEvent string) ([]types.Workflow, error)
}
