package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
)

// ImageHandler turns stored filenames into fetchable URLs. Each request gets
// its own resolver, so URLs and failures are cached per request batch.
type ImageHandler struct {
	storage images.Source
	log     logging.Logger
}

// NewImageHandler creates a new ImageHandler
func NewImageHandler(storage images.Source, log logging.Logger) *ImageHandler {
	return &ImageHandler{storage: storage, log: log}
}

func (h *ImageHandler) resolver() *images.Resolver {
	return images.NewResolver(h.storage, h.log)
}

// RegisterImageRoutes registers image routes
func (h *ImageHandler) RegisterImageRoutes(g *echo.Group) {
	g.GET("/images/:uid/:filename", h.Redirect)
	g.POST("/images/:uid/resolve", h.ResolveAll)
}

// Redirect sends the browser to the download URL of images/{uid}/{filename}
func (h *ImageHandler) Redirect(c echo.Context) error {
	url, err := h.resolver().Resolve(c.Request().Context(), c.Param("uid"), c.Param("filename"))
	if err != nil {
		return httpError(err)
	}
	return c.Redirect(http.StatusFound, url)
}

type resolveRequest struct {
	Filenames []string `json:"filenames" validate:"required,max=50,dive,required"`
}

// ResolveAll resolves a batch of filenames; failed ones carry an empty URL
func (h *ImageHandler) ResolveAll(c echo.Context) error {
	var req resolveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.resolver().ResolveAll(c.Request().Context(), c.Param("uid"), req.Filenames))
}
