package types

import "time"

// Notification is one per-user inbox entry. Rows are written by the
// automation engine and read back newest first.
type Notification struct {
	ID        string
	TenantID  string
	UserID    string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}
