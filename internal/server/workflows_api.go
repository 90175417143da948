package server

import (
	"encoding/json"
	"net/http"

	"github.com/lumacrm/luma/internal/routing"
	automationtypes "github.com/lumacrm/luma/modules/automation/domain/types"
	automationservices "github.com/lumacrm/luma/modules/automation/services"
)

type workflowDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SubModuleCode   string `json:"sub_module_code"`
	TriggerEvent    string `json:"trigger_event"`
	ConditionExpr   string `json:"condition_expr,omitempty"`
	RecipientID     string `json:"recipient_id"`
	MessageTemplate string `json:"message_template,omitempty"`
	Enabled         bool   `json:"enabled"`
}

func toWorkflowDTO(wf automationtypes.Workflow) workflowDTO {
	return workflowDTO{
		ID:              wf.ID,
		Name:            wf.Name,
		SubModuleCode:   wf.SubModuleCode,
		TriggerEvent:    wf.TriggerEvent,
		ConditionExpr:   wf.ConditionExpr,
		RecipientID:     wf.RecipientID,
		MessageTemplate: wf.MessageTemplate,
		Enabled:         wf.Enabled,
	}
}

func decodeWorkflow(r *http.Request) (automationtypes.Workflow, bool) {
	var req workflowDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return automationtypes.Workflow{}, false
	}
	return automationtypes.Workflow{
		Name:            req.Name,
		SubModuleCode:   req.SubModuleCode,
		TriggerEvent:    req.TriggerEvent,
		ConditionExpr:   req.ConditionExpr,
		RecipientID:     req.RecipientID,
		MessageTemplate: req.MessageTemplate,
		Enabled:         req.Enabled,
	}, true
}

func handleListWorkflows(w http.ResponseWriter, r *http.Request, workflows automationservices.WorkflowService) {
	tenant, _ := currentTenant(r.Context())

	out, err := workflows.List(r.Context(), tenant.ID)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}

	dtos := make([]workflowDTO, 0, len(out))
	for _, wf := range out {
		dtos = append(dtos, toWorkflowDTO(wf))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": dtos})
}

func handleCreateWorkflow(w http.ResponseWriter, r *http.Request, workflows automationservices.WorkflowService) {
	tenant, _ := currentTenant(r.Context())

	wf, ok := decodeWorkflow(r)
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	created, err := workflows.Create(r.Context(), tenant.ID, wf)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowDTO(created))
}

func handleUpdateWorkflow(w http.ResponseWriter, r *http.Request, workflows automationservices.WorkflowService) {
	tenant, _ := currentTenant(r.Context())

	wf, ok := decodeWorkflow(r)
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	updated, err := workflows.Update(r.Context(), tenant.ID, routing.PathParam(r, "id"), wf)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(updated))
}

func handleDeleteWorkflow(w http.ResponseWriter, r *http.Request, workflows automationservices.WorkflowService) {
	tenant, _ := currentTenant(r.Context())

	if err := workflows.Delete(r.Context(), tenant.ID, routing.PathParam(r, "id")); err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
