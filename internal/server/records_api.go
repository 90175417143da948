package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lumacrm/luma/internal/routing"
	recordtypes "github.com/lumacrm/luma/modules/records/domain/types"
	recordservices "github.com/lumacrm/luma/modules/records/services"
)

type recordDTO struct {
	ID        string         `json:"id"`
	Payload   map[string]any `json:"payload"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toRecordDTO(rec recordtypes.Record) recordDTO {
	return recordDTO{
		ID:        rec.ID,
		Payload:   rec.Payload,
		CreatedBy: rec.CreatedBy,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func handleListRecords(w http.ResponseWriter, r *http.Request, records recordservices.RecordService) {
	tenant, _ := currentTenant(r.Context())
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := records.List(r.Context(), tenant.ID, routing.PathParam(r, "code"), recordtypes.ListQuery{
		Page:      page,
		PageSize:  pageSize,
		SortField: q.Get("sort"),
		SortDir:   q.Get("dir"),
	})
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}

	items := make([]recordDTO, 0, len(result.Items))
	for _, rec := range result.Items {
		items = append(items, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":     items,
		"total":       result.Total,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_pages": result.TotalPages,
	})
}

func handleGetRecord(w http.ResponseWriter, r *http.Request, records recordservices.RecordService) {
	tenant, _ := currentTenant(r.Context())

	rec, err := records.Get(r.Context(), tenant.ID, routing.PathParam(r, "code"), routing.PathParam(r, "id"))
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

func handleCreateRecord(w http.ResponseWriter, r *http.Request, records recordservices.RecordService) {
	tenant, _ := currentTenant(r.Context())
	principal, _ := currentPrincipal(r.Context())

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "payload must be a JSON object")
		return
	}

	rec, err := records.Create(r.Context(), tenant.ID, routing.PathParam(r, "code"), principal.ID, payload)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

func handleUpdateRecord(w http.ResponseWriter, r *http.Request, records recordservices.RecordService) {
	tenant, _ := currentTenant(r.Context())
	principal, _ := currentPrincipal(r.Context())

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "payload must be a JSON object")
		return
	}

	rec, err := records.Update(r.Context(), tenant.ID, routing.PathParam(r, "code"), principal.ID, routing.PathParam(r, "id"), payload)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

func handleDeleteRecord(w http.ResponseWriter, r *http.Request, records recordservices.RecordService) {
	tenant, _ := currentTenant(r.Context())
	principal, _ := currentPrincipal(r.Context())

	if err := records.Delete(r.Context(), tenant.ID, routing.PathParam(r, "code"), principal.ID, routing.PathParam(r, "id")); err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
