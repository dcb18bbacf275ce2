package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/membership"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/profile"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// ProfileResponse is a profile with its package tier
type ProfileResponse struct {
	*models.User
	Tier  string `json:"tier"`
	Badge string `json:"badge"`
}

// UserHandler handles profile reads and edits
type UserHandler struct {
	resolver *identity.Resolver
	editor   *profile.Editor
	tiers    *membership.Lookup
	users    repositories.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(resolver *identity.Resolver, editor *profile.Editor, tiers *membership.Lookup,
	users repositories.UserRepository) *UserHandler {
	return &UserHandler{resolver: resolver, editor: editor, tiers: tiers, users: users}
}

// RegisterProfileRoutes registers profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.PUT("/profile/images/:target", h.UpdateProfileImage)
	g.GET("/users/:uid", h.GetUser)
	g.POST("/devices", h.RegisterDevice)
	g.DELETE("/devices/:token", h.UnregisterDevice)
}

// GetProfile returns the signed-in user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	user, err := h.resolver.Profile(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return h.respond(c, user)
}

// GetUser returns any user's profile
func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.resolver.ProfileFor(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return httpError(err)
	}
	return h.respond(c, user)
}

// UpdateProfile overwrites name, bio and birthday
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.editor.UpdateDetails(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return h.respond(c, user)
}

// UpdateProfileImage replaces the avatar or the cover photo
func (h *UserHandler) UpdateProfileImage(c echo.Context) error {
	target, err := profile.ParseEditTarget(c.Param("target"))
	if err != nil {
		return httpError(err)
	}

	uploads, done, err := formUploads(c, "image")
	if err != nil {
		return err
	}
	defer done()
	if len(uploads) != 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "Exactly one image is required")
	}

	user, err := h.editor.UpdateImage(c.Request().Context(), target, uploads[0])
	if err != nil {
		return httpError(err)
	}
	return h.respond(c, user)
}

type deviceRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterDevice stores a push token for the signed-in user
func (h *UserHandler) RegisterDevice(c echo.Context) error {
	var req deviceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	uid, err := h.resolver.Require()
	if err != nil {
		return httpError(err)
	}
	if err := h.users.AddDeviceToken(c.Request().Context(), uid, req.Token); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// UnregisterDevice drops a push token
func (h *UserHandler) UnregisterDevice(c echo.Context) error {
	uid, err := h.resolver.Require()
	if err != nil {
		return httpError(err)
	}
	if err := h.users.RemoveDeviceToken(c.Request().Context(), uid, c.Param("token")); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) respond(c echo.Context, user *models.User) error {
	tier, err := h.tiers.Tier(c.Request().Context(), user.UID)
	if err != nil {
		// the profile is still useful without a badge
		c.Logger().Warnf("tier lookup failed for %s: %v", user.UID, err)
	}
	return c.JSON(http.StatusOK, ProfileResponse{User: user, Tier: tier, Badge: membership.Badge(tier)})
}
