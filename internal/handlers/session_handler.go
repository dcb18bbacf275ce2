package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/middleware"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// SessionHandler signs the device in and out
type SessionHandler struct {
	resolver *identity.Resolver
	secret   string
	ttl      time.Duration
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(resolver *identity.Resolver, secret string, ttl time.Duration) *SessionHandler {
	return &SessionHandler{resolver: resolver, secret: secret, ttl: ttl}
}

// RegisterSessionRoutes registers the unauthenticated sign-in route
func (h *SessionHandler) RegisterSessionRoutes(g *echo.Group) {
	g.POST("/session", h.SignIn)
}

// RegisterProtectedRoutes registers routes that need a live session
func (h *SessionHandler) RegisterProtectedRoutes(g *echo.Group) {
	g.DELETE("/session", h.SignOut)
}

// SignIn verifies the identity provider's ID token, switches the device to
// that user and returns a local session token
func (h *SessionHandler) SignIn(c echo.Context) error {
	var req models.SignInRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	uid, err := h.resolver.SignIn(c.Request().Context(), req.IDToken)
	if err != nil {
		return httpError(err)
	}

	token, err := middleware.IssueSessionToken(h.secret, uid, h.ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusOK, echo.Map{"uid": uid, "token": token})
}

// SignOut clears the device identity; every live view of the old user closes
func (h *SessionHandler) SignOut(c echo.Context) error {
	if err := h.resolver.SignOut(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
