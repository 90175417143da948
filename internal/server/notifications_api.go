package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lumacrm/luma/internal/routing"
	notifytypes "github.com/lumacrm/luma/modules/notify/domain/types"
	notifyservices "github.com/lumacrm/luma/modules/notify/services"
)

type notificationDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationDTO(n notifytypes.Notification) notificationDTO {
	return notificationDTO{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func handleListNotifications(w http.ResponseWriter, r *http.Request, notifications notifyservices.NotificationService) {
	tenant, _ := currentTenant(r.Context())
	principal, ok := currentPrincipal(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnauthorized, "unauthenticated", "identity required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := notifications.ListForUser(r.Context(), tenant.ID, principal.ID, limit)
	if err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}

	dtos := make([]notificationDTO, 0, len(out))
	for _, n := range out {
		dtos = append(dtos, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": dtos})
}

func handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, notifications notifyservices.NotificationService) {
	tenant, _ := currentTenant(r.Context())
	principal, ok := currentPrincipal(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnauthorized, "unauthenticated", "identity required")
		return
	}

	if err := notifications.MarkRead(r.Context(), tenant.ID, principal.ID, routing.PathParam(r, "id")); err != nil {
		writeAppError(w, r, routing.RouteClassInternalAPI, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
