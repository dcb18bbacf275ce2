package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/membership"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// SubscriptionHandler handles the package-tier wizard and tier lookups
type SubscriptionHandler struct {
	service *membership.Service
	tiers   *membership.Lookup
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(service *membership.Service, tiers *membership.Lookup) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, tiers: tiers}
}

// RegisterSubscriptionRoutes registers subscription-related routes
func (h *SubscriptionHandler) RegisterSubscriptionRoutes(g *echo.Group) {
	g.POST("/subscriptions", h.Submit)
	g.GET("/subscriptions/tier/:uid", h.GetTier)
}

// Submit stores a completed wizard run with its verification "images"
func (h *SubscriptionHandler) Submit(c echo.Context) error {
	var req models.CreateSubscriptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	uploads, done, err := formUploads(c, "images")
	if err != nil {
		return err
	}
	defer done()

	sub, err := h.service.Submit(c.Request().Context(), membership.Application{Request: req, Images: uploads})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

// GetTier returns the package tier of a user and its badge
func (h *SubscriptionHandler) GetTier(c echo.Context) error {
	tier, err := h.tiers.Tier(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tier": tier, "badge": membership.Badge(tier)})
}
