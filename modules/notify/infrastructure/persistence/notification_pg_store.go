package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lumacrm/luma/modules/notify/domain/ports"
	"github.com/lumacrm/luma/modules/notify/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type NotificationPGStore struct {
	pool pgBeginner
}

func NewNotificationPGStore(pool pgBeginner) ports.NotificationStore {
	return &NotificationPGStore{pool: pool}
}

func retriableRead(err error) bool {
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func (s *NotificationPGStore) InsertNotification(ctx context.Context, n types.Notification) (types.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Notification{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, n.TenantID); err != nil {
		return types.Notification{}, err
	}

	if err := tx.QueryRow(ctx, `
INSERT INTO notifications (id, tenant_id, user_id, title, body, read)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, false)
RETURNING created_at
`, n.ID, n.TenantID, n.UserID, n.Title, n.Body).Scan(&n.CreatedAt); err != nil {
		return types.Notification{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

func (s *NotificationPGStore) ListForUser(ctx context.Context, tenantID string, userID string, limit int) ([]types.Notification, error) {
	out, err := s.listForUserOnce(ctx, tenantID, userID, limit)
	if err != nil && retriableRead(err) {
		out, err = s.listForUserOnce(ctx, tenantID, userID, limit)
	}
	return out, err
}

func (s *NotificationPGStore) listForUserOnce(ctx context.Context, tenantID string, userID string, limit int) ([]types.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id::text, tenant_id::text, user_id::text, title, COALESCE(body, ''), read, created_at
FROM notifications
WHERE tenant_id = $1::uuid AND user_id = $2::uuid
ORDER BY created_at DESC, id DESC
LIMIT $3
`, tenantID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Notification, 0, limit)
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *NotificationPGStore) MarkRead(ctx context.Context, tenantID string, userID string, notificationID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE notifications
SET read = true
WHERE tenant_id = $1::uuid AND user_id = $2::uuid AND id = $3::uuid
`, tenantID, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotificationNotFound
	}

	return tx.Commit(ctx)
}
