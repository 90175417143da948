package services

import (
	"context"
	"errors"
	"strings"

	"github.com/lumacrm/luma/modules/notify/domain/ports"
	"github.com/lumacrm/luma/modules/notify/domain/types"
	"github.com/lumacrm/luma/pkg/apperr"
	"github.com/lumacrm/luma/pkg/uuidv7"
)

var newUUID = uuidv7.NewString

const defaultInboxLimit = 50

type NotificationService interface {
	Notify(ctx context.Context, tenantID string, userID string, title string, body string) (types.Notification, error)
	ListForUser(ctx context.Context, tenantID string, userID string, limit int) ([]types.Notification, error)
	MarkRead(ctx context.Context, tenantID string, userID string, notificationID string) error
}

type notificationService struct {
	store ports.NotificationStore
}

func NewNotificationService(store ports.NotificationStore) NotificationService {
	return &notificationService{store: store}
}

func (s *notificationService) Notify(ctx context.Context, tenantID string, userID string, title string, body string) (types.Notification, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.Notification{}, apperr.NewBadRequest("notification title is required")
	}
	if strings.TrimSpace(userID) == "" {
		return types.Notification{}, apperr.NewBadRequest("notification recipient is required")
	}

	id, err := newUUID()
	if err != nil {
		return types.Notification{}, err
	}
	return s.store.InsertNotification(ctx, types.Notification{
		ID:       id,
		TenantID: tenantID,
		UserID:   userID,
		Title:    title,
		Body:     body,
	})
}

func (s *notificationService) ListForUser(ctx context.Context, tenantID string, userID string, limit int) ([]types.Notification, error) {
	if limit < 1 {
		limit = defaultInboxLimit
	}
	return s.store.ListForUser(ctx, tenantID, userID, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, tenantID string, userID string, notificationID string) error {
	err := s.store.MarkRead(ctx, tenantID, userID, notificationID)
	if errors.Is(err, ports.ErrNotificationNotFound) {
		return apperr.NewNotFound("notification %q not found", notificationID)
	}
	return err
}
