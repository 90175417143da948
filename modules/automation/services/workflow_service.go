package services

import (
	"context"
	"errors"
	"strings"

	"github.com/lumacrm/luma/modules/automation/domain/ports"
	"github.com/lumacrm/luma/modules/automation/domain/types"
	"github.com/lumacrm/luma/pkg/apperr"
	"github.com/lumacrm/luma/pkg/lifecycle"
	"github.com/lumacrm/luma/pkg/uuidv7"
)

var newUUID = uuidv7.NewString

type WorkflowService interface {
	Create(ctx context.Context, tenantID string, wf types.Workflow) (types.Workflow, error)
	List(ctx context.Context, tenantID string) ([]types.Workflow, error)
	Update(ctx context.Context, tenantID string, workflowID string, wf types.Workflow) (types.Workflow, error)
	Delete(ctx context.Context, tenantID string, workflowID string) error
}

type workflowService struct {
	store ports.WorkflowStore
}

func NewWorkflowService(store ports.WorkflowStore) WorkflowService {
	return &workflowService{store: store}
}

var validTriggers = map[string]bool{
	string(lifecycle.RecordCreated): true,
	string(lifecycle.RecordUpdated): true,
	string(lifecycle.RecordDeleted): true,
	string(lifecycle.SchemaChanged): true,
}

// checkWorkflow validates the caller-provided fields, including compiling
// the CEL condition so broken expressions fail at save time, not at event
// time.
func checkWorkflow(wf types.Workflow) []apperr.FieldError {
	var ferrs []apperr.FieldError
	if strings.TrimSpace(wf.Name) == "" {
		ferrs = append(ferrs, apperr.FieldError{Field: "name", Reason: "required"})
	}
	if strings.TrimSpace(wf.SubModuleCode) == "" {
		ferrs = append(ferrs, apperr.FieldError{Field: "sub_module_code", Reason: "required"})
	}
	if !validTriggers[wf.TriggerEvent] {
		ferrs = append(ferrs, apperr.FieldError{Field: "trigger_event", Reason: "invalid_trigger"})
	}
	if strings.TrimSpace(wf.RecipientID) == "" {
		ferrs = append(ferrs, apperr.FieldError{Field: "recipient_id", Reason: "required"})
	}
	if _, err := CompileCondition(wf.ConditionExpr); err != nil {
		ferrs = append(ferrs, apperr.FieldError{Field: "condition_expr", Reason: "invalid_expression"})
	}
	return ferrs
}

func (s *workflowService) Create(ctx context.Context, tenantID string, wf types.Workflow) (types.Workflow, error) {
	if ferrs := checkWorkflow(wf); len(ferrs) > 0 {
		return types.Workflow{}, apperr.NewValidation(ferrs)
	}

	id, err := newUUID()
	if err != nil {
		return types.Workflow{}, err
	}
	wf.ID = id
	wf.TenantID = tenantID
	wf.Name = strings.TrimSpace(wf.Name)
	return s.store.InsertWorkflow(ctx, wf)
}

func (s *workflowService) List(ctx context.Context, tenantID string) ([]types.Workflow, error) {
	return s.store.ListWorkflows(ctx, tenantID)
}

func (s *workflowService) Update(ctx context.Context, tenantID string, workflowID string, wf types.Workflow) (types.Workflow, error) {
	if ferrs := checkWorkflow(wf); len(ferrs) > 0 {
		return types.Workflow{}, apperr.NewValidation(ferrs)
	}

	current, err := s.store.FindWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		if errors.Is(err, ports.ErrWorkflowNotFound) {
			return types.Workflow{}, apperr.NewNotFound("workflow %q not found", workflowID)
		}
		return types.Workflow{}, err
	}

	wf.ID = current.ID
	wf.TenantID = tenantID
	wf.Name = strings.TrimSpace(wf.Name)
	updated, err := s.store.UpdateWorkflow(ctx, wf)
	if err != nil {
		if errors.Is(err, ports.ErrWorkflowNotFound) {
			return types.Workflow{}, apperr.NewNotFound("workflow %q not found", workflowID)
		}
		return types.Workflow{}, err
	}
	return updated, nil
}

func (s *workflowService) Delete(ctx context.Context, tenantID string, workflowID string) error {
	err := s.store.DeleteWorkflow(ctx, tenantID, workflowID)
	if errors.Is(err, ports.ErrWorkflowNotFound) {
		return apperr.NewNotFound("workflow %q not found", workflowID)
	}
	return err
}
