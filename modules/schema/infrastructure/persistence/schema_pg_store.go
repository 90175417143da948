package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lumacrm/luma/modules/schema/domain/ports"
	"github.com/lumacrm/luma/modules/schema/domain/types"
)

const (
	constraintSubModuleCode   = "sub_modules_tenant_code_unique"
	constraintFieldDBName     = "sub_module_fields_sub_module_db_name_unique"
	pgUniqueViolationSQLState = "23505"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type SchemaPGStore struct {
	pool pgBeginner
}

func NewSchemaPGStore(pool pgBeginner) ports.SchemaStore {
	return &SchemaPGStore{pool: pool}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	if !ok || pgErr == nil {
		return false
	}
	return pgErr.Code == pgUniqueViolationSQLState && pgErr.ConstraintName == constraint
}

// retriableRead reports whether a failed read can be safely reissued.
// Writes never retry: a duplicate create is worse than a surfaced error.
func retriableRead(err error) bool {
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func (s *SchemaPGStore) InsertSubModule(ctx context.Context, sm types.SubModule) (types.SubModule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.SubModule{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, sm.TenantID); err != nil {
		return types.SubModule{}, err
	}

	settings, err := json.Marshal(sm.Settings)
	if err != nil {
		return types.SubModule{}, err
	}
	listView, err := json.Marshal(sm.ListViewConfig)
	if err != nil {
		return types.SubModule{}, err
	}
	formView, err := json.Marshal(sm.FormViewConfig)
	if err != nil {
		return types.SubModule{}, err
	}

	var mainModuleID any
	if sm.MainModuleID != "" {
		mainModuleID = sm.MainModuleID
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO sub_modules (
  id, tenant_id, name, code, description, main_module_id, icon,
  display_name_singular, display_name_plural,
  settings, list_view_config, form_view_config, sort_order
) VALUES (
  $1::uuid, $2::uuid, $3, $4, $5, $6::uuid, $7, $8, $9,
  $10::jsonb, $11::jsonb, $12::jsonb, $13
)
`, sm.ID, sm.TenantID, sm.Name, sm.Code, sm.Description, mainModuleID, sm.Icon,
		sm.DisplayNameSingular, sm.DisplayNamePlural,
		settings, listView, formView, sm.SortOrder); err != nil {
		if isUniqueViolation(err, constraintSubModuleCode) {
			return types.SubModule{}, ports.ErrDuplicateCode
		}
		return types.SubModule{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.SubModule{}, err
	}
	return sm, nil
}

const subModuleColumns = `
  id::text, tenant_id::text, name, code,
  COALESCE(description, ''), COALESCE(main_module_id::text, ''), COALESCE(icon, ''),
  display_name_singular, display_name_plural,
  settings, list_view_config, form_view_config, sort_order
`

func scanSubModule(row pgx.Row) (types.SubModule, error) {
	var sm types.SubModule
	var settings, listView, formView []byte
	if err := row.Scan(
		&sm.ID, &sm.TenantID, &sm.Name, &sm.Code,
		&sm.Description, &sm.MainModuleID, &sm.Icon,
		&sm.DisplayNameSingular, &sm.DisplayNamePlural,
		&settings, &listView, &formView, &sm.SortOrder,
	); err != nil {
		return types.SubModule{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &sm.Settings); err != nil {
			return types.SubModule{}, err
		}
	}
	if len(listView) > 0 {
		if err := json.Unmarshal(listView, &sm.ListViewConfig); err != nil {
			return types.SubModule{}, err
		}
	}
	if len(formView) > 0 {
		if err := json.Unmarshal(formView, &sm.FormViewConfig); err != nil {
			return types.SubModule{}, err
		}
	}
	return sm, nil
}

func (s *SchemaPGStore) ListSubModules(ctx context.Context, tenantID string) ([]types.SubModule, error) {
	out, err := s.listSubModulesOnce(ctx, tenantID)
	if err != nil && retriableRead(err) {
		out, err = s.listSubModulesOnce(ctx, tenantID)
	}
	return out, err
}

func (s *SchemaPGStore) listSubModulesOnce(ctx context.Context, tenantID string) ([]types.SubModule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+subModuleColumns+`
FROM sub_modules
WHERE tenant_id = $1::uuid
ORDER BY sort_order ASC, name ASC
`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.SubModule, 0)
	for rows.Next() {
		sm, err := scanSubModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SchemaPGStore) FindSubModuleByCode(ctx context.Context, tenantID string, code string) (types.SubModule, error) {
	sm, err := s.findSubModule(ctx, tenantID, `code = $2`, code)
	if err != nil && retriableRead(err) {
		sm, err = s.findSubModule(ctx, tenantID, `code = $2`, code)
	}
	return sm, err
}

func (s *SchemaPGStore) FindSubModuleByID(ctx context.Context, tenantID string, id string) (types.SubModule, error) {
	sm, err := s.findSubModule(ctx, tenantID, `id = $2::uuid`, id)
	if err != nil && retriableRead(err) {
		sm, err = s.findSubModule(ctx, tenantID, `id = $2::uuid`, id)
	}
	return sm, err
}

func (s *SchemaPGStore) findSubModule(ctx context.Context, tenantID string, predicate string, arg string) (types.SubModule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.SubModule{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return types.SubModule{}, err
	}

	sm, err := scanSubModule(tx.QueryRow(ctx, `
SELECT `+subModuleColumns+`
FROM sub_modules
WHERE tenant_id = $1::uuid AND `+predicate+`
`, tenantID, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.SubModule{}, ports.ErrSubModuleNotFound
		}
		return types.SubModule{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.SubModule{}, err
	}
	return sm, nil
}

func (s *SchemaPGStore) ListFields(ctx context.Context, tenantID string, subModuleID string) ([]types.SubModuleField, error) {
	out, err := s.listFieldsOnce(ctx, tenantID, subModuleID)
	if err != nil && retriableRead(err) {
		out, err = s.listFieldsOnce(ctx, tenantID, subModuleID)
	}
	return out, err
}

func (s *SchemaPGStore) listFieldsOnce(ctx context.Context, tenantID string, subModuleID string) ([]types.SubModuleField, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id::text, sub_module_id::text, tenant_id::text, name, db_name, field_type,
       options, is_required, is_visible_in_list, sort_order
FROM sub_module_fields
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid
ORDER BY sort_order ASC
`, tenantID, subModuleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.SubModuleField, 0)
	for rows.Next() {
		var f types.SubModuleField
		var fieldType string
		var options []byte
		if err := rows.Scan(&f.ID, &f.SubModuleID, &f.TenantID, &f.Name, &f.DBName, &fieldType,
			&options, &f.IsRequired, &f.IsVisibleInList, &f.SortOrder); err != nil {
			return nil, err
		}
		f.FieldType = types.FieldType(fieldType)
		if len(options) > 0 {
			if err := json.Unmarshal(options, &f.Options); err != nil {
				return nil, err
			}
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceFields runs the delete and every insert in one transaction, so a
// failed insert leaves the previous field set untouched.
func (s *SchemaPGStore) ReplaceFields(ctx context.Context, tenantID string, subModuleID string, fields []types.SubModuleField) ([]types.SubModuleField, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM sub_module_fields
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid
`, tenantID, subModuleID); err != nil {
		return nil, err
	}

	for _, f := range fields {
		options, err := json.Marshal(f.Options)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO sub_module_fields (
  id, sub_module_id, tenant_id, name, db_name, field_type,
  options, is_required, is_visible_in_list, sort_order
) VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7::jsonb, $8, $9, $10)
`, f.ID, f.SubModuleID, f.TenantID, f.Name, f.DBName, string(f.FieldType),
			options, f.IsRequired, f.IsVisibleInList, f.SortOrder); err != nil {
			if isUniqueViolation(err, constraintFieldDBName) {
				return nil, ports.ErrDuplicateFieldDBName
			}
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return fields, nil
}
