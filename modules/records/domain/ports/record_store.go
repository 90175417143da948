package ports

import (
	"context"
	"errors"

	"github.com/lumacrm/luma/modules/records/domain/types"
)

// ErrRecordNotFound covers missing, soft-deleted and out-of-scope records
// alike; callers cannot distinguish them, which keeps guessed ids useless
// across tenants.
var ErrRecordNotFound = errors.New("records: record not found")

// SortKey is a validated sort target. Column sorts on a record column;
// JSONKey sorts on a payload key (already checked against the field set by
// the service, so stores may splice it into SQL).
type SortKey struct {
	Column  string
	JSONKey string
	Desc    bool
}

type RecordStore interface {
	InsertRecord(ctx context.Context, rec types.Record) (types.Record, error)
	FindRecord(ctx context.Context, tenantID string, subModuleID string, recordID string) (types.Record, error)
	ListRecords(ctx context.Context, tenantID string, subModuleID string, offset int, limit int, sort SortKey) ([]types.Record, int, error)
	UpdateRecordPayload(ctx context.Context, tenantID string, subModuleID string, recordID string, payload map[string]any) (types.Record, error)
	// SoftDeleteRecord is idempotent: deleting an absent or already-deleted
	// record is not an error. The bool reports whether a live row was
	// actually marked this call.
	SoftDeleteRecord(ctx context.Context, tenantID string, subModuleID string, recordID string) (bool, error)
}
