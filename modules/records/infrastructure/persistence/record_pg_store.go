package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lumacrm/luma/modules/records/domain/ports"
	"github.com/lumacrm/luma/modules/records/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type RecordPGStore struct {
	pool pgBeginner
}

func NewRecordPGStore(pool pgBeginner) ports.RecordStore {
	return &RecordPGStore{pool: pool}
}

// retriableRead reports whether a failed read can be safely reissued.
// Writes never retry: a duplicate insert is worse than a surfaced error.
func retriableRead(err error) bool {
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

const recordColumns = `
  id::text, sub_module_id::text, tenant_id::text, payload,
  COALESCE(created_by::text, ''), created_at, updated_at, deleted_at
`

func scanRecord(row pgx.Row) (types.Record, error) {
	var rec types.Record
	var payload []byte
	if err := row.Scan(
		&rec.ID, &rec.SubModuleID, &rec.TenantID, &payload,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt,
	); err != nil {
		return types.Record{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return types.Record{}, err
		}
	}
	return rec, nil
}

func (s *RecordPGStore) InsertRecord(ctx context.Context, rec types.Record) (types.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Record{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, rec.TenantID); err != nil {
		return types.Record{}, err
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return types.Record{}, err
	}

	var createdBy any
	if rec.CreatedBy != "" {
		createdBy = rec.CreatedBy
	}

	if err := tx.QueryRow(ctx, `
INSERT INTO sub_module_records (id, sub_module_id, tenant_id, payload, created_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::jsonb, $5::uuid)
RETURNING created_at, updated_at
`, rec.ID, rec.SubModuleID, rec.TenantID, payload, createdBy).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return types.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

func (s *RecordPGStore) FindRecord(ctx context.Context, tenantID string, subModuleID string, recordID string) (types.Record, error) {
	rec, err := s.findRecordOnce(ctx, tenantID, subModuleID, recordID)
	if err != nil && retriableRead(err) {
		rec, err = s.findRecordOnce(ctx, tenantID, subModuleID, recordID)
	}
	return rec, err
}

func (s *RecordPGStore) findRecordOnce(ctx context.Context, tenantID string, subModuleID string, recordID string) (types.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Record{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return types.Record{}, err
	}

	rec, err := scanRecord(tx.QueryRow(ctx, `
SELECT `+recordColumns+`
FROM sub_module_records
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid AND id = $3::uuid
  AND deleted_at IS NULL
`, tenantID, subModuleID, recordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Record{}, ports.ErrRecordNotFound
		}
		return types.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

func (s *RecordPGStore) ListRecords(ctx context.Context, tenantID string, subModuleID string, offset int, limit int, sort ports.SortKey) ([]types.Record, int, error) {
	recs, total, err := s.listRecordsOnce(ctx, tenantID, subModuleID, offset, limit, sort)
	if err != nil && retriableRead(err) {
		recs, total, err = s.listRecordsOnce(ctx, tenantID, subModuleID, offset, limit, sort)
	}
	return recs, total, err
}

// orderClause builds the ORDER BY from an already-whitelisted SortKey. The
// service validates JSONKey against the field set, so splicing it here is
// not an injection surface; the id tiebreak keeps pagination stable.
func orderClause(sort ports.SortKey) string {
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	if sort.JSONKey != "" {
		return fmt.Sprintf("ORDER BY payload->>'%s' %s NULLS LAST, id %s", sort.JSONKey, dir, dir)
	}
	col := sort.Column
	if col == "" {
		col = "created_at"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir)
}

func (s *RecordPGStore) listRecordsOnce(ctx context.Context, tenantID string, subModuleID string, offset int, limit int, sort ports.SortKey) ([]types.Record, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, 0, err
	}

	// Count and page in the same transaction, so the total matches the rows.
	var total int
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM sub_module_records
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid AND deleted_at IS NULL
`, tenantID, subModuleID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+recordColumns+`
FROM sub_module_records
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid AND deleted_at IS NULL
`+orderClause(sort)+`
OFFSET $3 LIMIT $4
`, tenantID, subModuleID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]types.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *RecordPGStore) UpdateRecordPayload(ctx context.Context, tenantID string, subModuleID string, recordID string, payload map[string]any) (types.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Record{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return types.Record{}, err
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return types.Record{}, err
	}

	rec, err := scanRecord(tx.QueryRow(ctx, `
UPDATE sub_module_records
SET payload = $4::jsonb, updated_at = now()
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid AND id = $3::uuid
  AND deleted_at IS NULL
RETURNING `+recordColumns+`
`, tenantID, subModuleID, recordID, doc))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Record{}, ports.ErrRecordNotFound
		}
		return types.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

func (s *RecordPGStore) SoftDeleteRecord(ctx context.Context, tenantID string, subModuleID string, recordID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
UPDATE sub_module_records
SET deleted_at = now(), updated_at = now()
WHERE tenant_id = $1::uuid AND sub_module_id = $2::uuid AND id = $3::uuid
  AND deleted_at IS NULL
`, tenantID, subModuleID, recordID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
