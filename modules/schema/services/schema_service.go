package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumacrm/luma/modules/schema/domain/ports"
	"github.com/lumacrm/luma/modules/schema/domain/types"
	"github.com/lumacrm/luma/pkg/apperr"
	"github.com/lumacrm/luma/pkg/lifecycle"
	"github.com/lumacrm/luma/pkg/slug"
	"github.com/lumacrm/luma/pkg/uuidv7"
)

var newUUID = uuidv7.NewString

// SchemaService is the registry of tenant-defined sub-modules and the only
// mutation path for their field definitions.
type SchemaService interface {
	CreateSubModule(ctx context.Context, tenantID string, req CreateSubModuleRequest) (types.SubModule, error)
	ListSubModules(ctx context.Context, tenantID string) ([]types.SubModule, error)
	ResolveSubModule(ctx context.Context, tenantID string, code string) (types.SubModule, error)
	ListFields(ctx context.Context, tenantID string, subModuleID string) ([]types.SubModuleField, error)
	ApplySchema(ctx context.Context, tenantID string, subModuleID string, fields []FieldSpec) ([]types.SubModuleField, error)
}

type CreateSubModuleRequest struct {
	Name                string
	Code                string
	Description         string
	MainModuleID        string
	Icon                string
	DisplayNameSingular string
	DisplayNamePlural   string
	Settings            map[string]any
	ListViewConfig      *types.ListViewConfig
	FormViewConfig      map[string]any
}

// FieldSpec is the caller-submitted desired state of one field. IDs and sort
// order are assigned here, never taken from the client.
type FieldSpec struct {
	Name            string              `json:"name"`
	DBName          string              `json:"db_name"`
	FieldType       types.FieldType     `json:"field_type"`
	Options         []types.FieldOption `json:"options,omitempty"`
	IsRequired      bool                `json:"is_required"`
	IsVisibleInList bool                `json:"is_visible_in_list"`
}

type schemaService struct {
	store  ports.SchemaStore
	events lifecycle.Publisher
}

func NewSchemaService(store ports.SchemaStore, events lifecycle.Publisher) SchemaService {
	if events == nil {
		events = lifecycle.NopPublisher{}
	}
	return &schemaService{store: store, events: events}
}

func (s *schemaService) CreateSubModule(ctx context.Context, tenantID string, req CreateSubModuleRequest) (types.SubModule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return types.SubModule{}, apperr.NewBadRequest("name is required")
	}

	hint := req.Code
	if strings.TrimSpace(hint) == "" {
		hint = name
	}
	code, err := slug.Normalize(hint)
	if err != nil {
		return types.SubModule{}, err
	}

	id, err := newUUID()
	if err != nil {
		return types.SubModule{}, err
	}

	sm := types.SubModule{
		ID:                  id,
		TenantID:            tenantID,
		Name:                name,
		Code:                code,
		Description:         strings.TrimSpace(req.Description),
		MainModuleID:        strings.TrimSpace(req.MainModuleID),
		Icon:                strings.TrimSpace(req.Icon),
		DisplayNameSingular: strings.TrimSpace(req.DisplayNameSingular),
		DisplayNamePlural:   strings.TrimSpace(req.DisplayNamePlural),
		Settings:            req.Settings,
		FormViewConfig:      req.FormViewConfig,
	}
	if sm.DisplayNameSingular == "" {
		sm.DisplayNameSingular = name
	}
	if sm.DisplayNamePlural == "" {
		sm.DisplayNamePlural = name + "s"
	}
	if sm.Settings == nil {
		sm.Settings = map[string]any{}
	}
	if sm.FormViewConfig == nil {
		sm.FormViewConfig = map[string]any{}
	}
	if req.ListViewConfig != nil {
		sm.ListViewConfig = *req.ListViewConfig
	}
	if sm.ListViewConfig.Columns == nil {
		sm.ListViewConfig.Columns = []string{}
	}
	if sm.ListViewConfig.Filters == nil {
		sm.ListViewConfig.Filters = []string{}
	}

	created, err := s.store.InsertSubModule(ctx, sm)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateCode) {
			return types.SubModule{}, apperr.NewConflict("a module with code %q already exists in this tenant", code)
		}
		return types.SubModule{}, err
	}
	return created, nil
}

func (s *schemaService) ListSubModules(ctx context.Context, tenantID string) ([]types.SubModule, error) {
	return s.store.ListSubModules(ctx, tenantID)
}

func (s *schemaService) ResolveSubModule(ctx context.Context, tenantID string, code string) (types.SubModule, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.SubModule{}, apperr.NewBadRequest("code is required")
	}
	sm, err := s.store.FindSubModuleByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ports.ErrSubModuleNotFound) {
			return types.SubModule{}, apperr.NewNotFound("module %q not found", code)
		}
		return types.SubModule{}, err
	}
	return sm, nil
}

func (s *schemaService) ListFields(ctx context.Context, tenantID string, subModuleID string) ([]types.SubModuleField, error) {
	return s.store.ListFields(ctx, tenantID, subModuleID)
}

// ApplySchema treats fields as the complete desired state of the sub-module's
// schema: delete everything, insert the new set. Renaming a storage key is
// therefore delete+add; existing record payloads keep the old key until
// re-saved, and reads tolerate those orphans.
func (s *schemaService) ApplySchema(ctx context.Context, tenantID string, subModuleID string, fields []FieldSpec) ([]types.SubModuleField, error) {
	sm, err := s.store.FindSubModuleByID(ctx, tenantID, subModuleID)
	if err != nil {
		if errors.Is(err, ports.ErrSubModuleNotFound) {
			return nil, apperr.NewNotFound("sub-module %q not found", subModuleID)
		}
		return nil, err
	}

	rows, ferrs := buildFieldRows(tenantID, subModuleID, fields)
	if len(ferrs) > 0 {
		return nil, apperr.NewValidation(ferrs)
	}

	replaced, err := s.store.ReplaceFields(ctx, tenantID, subModuleID, rows)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateFieldDBName) {
			return nil, apperr.NewConflict("duplicate field storage key in sub-module %q", sm.Code)
		}
		return nil, err
	}
	if len(rows) > 0 && len(replaced) == 0 {
		// The replace is transactional; observing a delete without the
		// matching insert means the store lost atomicity.
		return nil, apperr.NewIntegrity("sub-module %q left with no fields after replace", sm.Code)
	}

	s.events.Publish(lifecycle.Event{
		Kind:          lifecycle.SchemaChanged,
		TenantID:      tenantID,
		SubModuleCode: sm.Code,
		OccurredAt:    time.Now().UTC(),
	})
	return replaced, nil
}

func buildFieldRows(tenantID string, subModuleID string, fields []FieldSpec) ([]types.SubModuleField, []apperr.FieldError) {
	var ferrs []apperr.FieldError
	seen := make(map[string]bool, len(fields))
	rows := make([]types.SubModuleField, 0, len(fields))

	for i, f := range fields {
		label := strings.TrimSpace(f.DBName)
		if label == "" {
			label = fmt.Sprintf("field[%d]", i)
		}

		dbName, err := slug.Normalize(f.DBName)
		if err != nil {
			ferrs = append(ferrs, apperr.FieldError{Field: label, Reason: "invalid_key"})
			continue
		}
		if strings.TrimSpace(f.Name) == "" {
			ferrs = append(ferrs, apperr.FieldError{Field: dbName, Reason: "name_required"})
			continue
		}
		if !f.FieldType.Valid() {
			ferrs = append(ferrs, apperr.FieldError{Field: dbName, Reason: "invalid_type"})
			continue
		}
		if f.FieldType == types.FieldTypeSelect && len(f.Options) == 0 {
			ferrs = append(ferrs, apperr.FieldError{Field: dbName, Reason: "options_required"})
			continue
		}
		if seen[dbName] {
			ferrs = append(ferrs, apperr.FieldError{Field: dbName, Reason: "duplicate_key"})
			continue
		}
		seen[dbName] = true

		id, err := newUUID()
		if err != nil {
			ferrs = append(ferrs, apperr.FieldError{Field: dbName, Reason: "id_generation_failed"})
			continue
		}
		rows = append(rows, types.SubModuleField{
			ID:              id,
			SubModuleID:     subModuleID,
			TenantID:        tenantID,
			Name:            strings.TrimSpace(f.Name),
			DBName:          dbName,
			FieldType:       f.FieldType,
			Options:         f.Options,
			IsRequired:      f.IsRequired,
			IsVisibleInList: f.IsVisibleInList,
			SortOrder:       i,
		})
	}
	return rows, ferrs
}
