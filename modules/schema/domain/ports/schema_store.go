package ports

import (
	"context"
	"errors"

	"github.com/lumacrm/luma/modules/schema/domain/types"
)

var (
	ErrSubModuleNotFound = errors.New("schema: sub-module not found")
	// ErrDuplicateCode surfaces the storage uniqueness constraint on
	// (tenant_id, code); the service translates it to a ConflictError.
	ErrDuplicateCode = errors.New("schema: sub-module code already exists")
	// ErrDuplicateFieldDBName surfaces the (sub_module_id, db_name)
	// constraint during a field replace.
	ErrDuplicateFieldDBName = errors.New("schema: field storage key already exists")
)

type SchemaStore interface {
	InsertSubModule(ctx context.Context, sm types.SubModule) (types.SubModule, error)
	ListSubModules(ctx context.Context, tenantID string) ([]types.SubModule, error)
	FindSubModuleByCode(ctx context.Context, tenantID string, code string) (types.SubModule, error)
	FindSubModuleByID(ctx context.Context, tenantID string, id string) (types.SubModule, error)
	ListFields(ctx context.Context, tenantID string, subModuleID string) ([]types.SubModuleField, error)
	// ReplaceFields deletes the sub-module's field rows and inserts the new
	// set in one transaction. Implementations must be all-or-nothing.
	ReplaceFields(ctx context.Context, tenantID string, subModuleID string, fields []types.SubModuleField) ([]types.SubModuleField, error)
}
