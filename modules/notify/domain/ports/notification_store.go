package ports

import (
	"context"
	"errors"

	"github.com/lumacrm/luma/modules/notify/domain/types"
)

var ErrNotificationNotFound = errors.New("notify: notification not found")

type NotificationStore interface {
	InsertNotification(ctx context.Context, n types.Notification) (types.Notification, error)
	// ListForUser returns the user's notifications newest first.
	ListForUser(ctx context.Context, tenantID string, userID string, limit int) ([]types.Notification, error)
	// MarkRead scopes by user as well as id, so one user cannot ack
	// another's notification.
	MarkRead(ctx context.Context, tenantID string, userID string, notificationID string) error
}
