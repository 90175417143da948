package server

import (
	"encoding/json"
	"net/http"

	"github.com/lumacrm/luma/internal/routing"
	schematypes "github.com/lumacrm/luma/modules/schema/domain/types"
	schemaservices "github.com/lumacrm/luma/modules/schema/services"
)

type subModuleDTO struct {
	ID                  string                     `json:"id"`
	Name                string                     `json:"name"`
	Code                string                     `json:"code"`
	Description         string                     `json:"description,omitempty"`
	MainModuleID        string                     `json:"main_module_id,omitempty"`
	Icon                string                     `json:"icon,omitempty"`
	DisplayNameSingular string                     `json:"display_name_singular"`
	DisplayNamePlural   string                     `json:"display_name_plural"`
	Settings            map[string]any             `json:"settings"`
	ListViewConfig      schematypes.ListViewConfig `json:"list_view_config"`
	FormViewConfig      map[string]any             `json:"form_view_config"`
	SortOrder           int                        `json:"sort_order"`
}

func toSubModuleDTO(sm schematypes.SubModule) subModuleDTO {
	return subModuleDTO{
		ID:                  sm.ID,
		Name:                sm.Name,
		Code:                sm.Code,
		Description:         sm.Description,
		MainModuleID:        sm.MainModuleID,
		Icon:                sm.Icon,
		DisplayNameSingular: sm.DisplayNameSingular,
		DisplayNamePlural:   sm.DisplayNamePlural,
		Settings:            sm.Settings,
		ListViewConfig:      sm.ListViewConfig,
		FormViewConfig:      sm.FormViewConfig,
		SortOrder:           sm.SortOrder,
	}
}

type fieldDTO struct {
	ID              string                    `json:"id"`
	Name            string                    `json:"name"`
	DBName          string                    `json:"db_name"`
	FieldType       string                    `json:"field_type"`
	Options         []schematypes.FieldOption `json:"options,omitempty"`
	IsRequired      bool                      `json:"is_required"`
	IsVisibleInList bool                      `json:"is_visible_in_list"`
	SortOrder       int                       `json:"sort_order"`
}

func toFieldDTOs(fields []schematypes.SubModuleField) []fieldDTO {
	out := make([]fieldDTO, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldDTO{
			ID:              f.ID,
			Name:            f.Name,
			DBName:          f.DBName,
			FieldType:       string(f.FieldType),
			Options:         f.Options,
			IsRequired:      f.IsRequired,
			IsVisibleInList: f.IsVisibleInList,
			SortOrder:       f.SortOrder,
		})
	}
	return out
}

func handleListSubModules(w http.ResponseWriter, r *http.Request, schemas schemaservices.SchemaService) {
	tenant, _ := currentTenant(r.Context())

	mods, err := schemas.ListSubModules(r.Context(), tenant.ID)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}

	out := make([]subModuleDTO, 0, len(mods))
	for _, sm := range mods {
		out = append(out, toSubModuleDTO(sm))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub_modules": out})
}

func handleCreateSubModule(w http.ResponseWriter, r *http.Request, schemas schemaservices.SchemaService) {
	tenant, _ := currentTenant(r.Context())

	var req struct {
		Name                string                      `json:"name"`
		Code                string                      `json:"code"`
		Description         string                      `json:"description"`
		MainModuleID        string                      `json:"main_module_id"`
		Icon                string                      `json:"icon"`
		DisplayNameSingular string                      `json:"display_name_singular"`
		DisplayNamePlural   string                      `json:"display_name_plural"`
		Settings            map[string]any              `json:"settings"`
		ListViewConfig      *schematypes.ListViewConfig `json:"list_view_config"`
		FormViewConfig      map[string]any              `json:"form_view_config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	sm, err := schemas.CreateSubModule(r.Context(), tenant.ID, schemaservices.CreateSubModuleRequest{
		Name:                req.Name,
		Code:                req.Code,
		Description:         req.Description,
		MainModuleID:        req.MainModuleID,
		Icon:                req.Icon,
		DisplayNameSingular: req.DisplayNameSingular,
		DisplayNamePlural:   req.DisplayNamePlural,
		Settings:            req.Settings,
		ListViewConfig:      req.ListViewConfig,
		FormViewConfig:      req.FormViewConfig,
	})
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubModuleDTO(sm))
}

func handleListFields(w http.ResponseWriter, r *http.Request, schemas schemaservices.SchemaService) {
	tenant, _ := currentTenant(r.Context())

	sm, err := schemas.ResolveSubModule(r.Context(), tenant.ID, routing.PathParam(r, "code"))
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	fields, err := schemas.ListFields(r.Context(), tenant.ID, sm.ID)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": toFieldDTOs(fields)})
}

func handleApplySchema(w http.ResponseWriter, r *http.Request, schemas schemaservices.SchemaService) {
	tenant, _ := currentTenant(r.Context())

	sm, err := schemas.ResolveSubModule(r.Context(), tenant.ID, routing.PathParam(r, "code"))
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}

	var req struct {
		Fields []schemaservices.FieldSpec `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	fields, err := schemas.ApplySchema(r.Context(), tenant.ID, sm.ID, req.Fields)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": toFieldDTOs(fields)})
}
