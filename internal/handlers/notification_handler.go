package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/notification"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// NotificationHandler serves one-shot reads of the signed-in user's
// notification log. Live updates go through the websocket session.
type NotificationHandler struct {
	store                  backend.Store
	notificationRepository repositories.NotificationRepository
	resolver               *identity.Resolver
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(store backend.Store, notifRepo repositories.NotificationRepository,
	resolver *identity.Resolver) *NotificationHandler {
	return &NotificationHandler{store: store, notificationRepository: notifRepo, resolver: resolver}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:key/read", h.MarkAsRead)
}

func (h *NotificationHandler) list(c echo.Context) ([]models.Notification, error) {
	uid, err := h.resolver.Require()
	if err != nil {
		return nil, httpError(err)
	}
	snaps, err := h.store.Find(c.Request().Context(), h.notificationRepository.ListQuery(uid))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	items, err := backend.DecodeAll[models.Notification](snaps)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return items, nil
}

// GetNotifications returns the log newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	items, err := h.list(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// GetUnreadCount returns the number of entries not opened yet and its badge
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	items, err := h.list(c)
	if err != nil {
		return err
	}
	n := 0
	for _, it := range items {
		if !it.Seen {
			n++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"count": n, "badge": notification.Badge(n)})
}

// MarkAsRead marks one entry seen
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	uid, err := h.resolver.Require()
	if err != nil {
		return httpError(err)
	}
	if err := h.notificationRepository.MarkSeen(c.Request().Context(), uid, c.Param("key")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
