package types

import "time"

// Record is one instance of a sub-module. Payload is an open map from field
// storage key to value; keys with no matching field definition are kept
// as-is (schema drift is tolerated on read).
type Record struct {
	ID          string         `json:"id"`
	SubModuleID string         `json:"sub_module_id"`
	TenantID    string         `json:"tenant_id"`
	Payload     map[string]any `json:"data"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

type ListQuery struct {
	Page      int
	PageSize  int
	SortField string
	SortDir   string
}

type RecordPage struct {
	Items      []Record `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}
