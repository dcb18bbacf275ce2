package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
)

// httpError maps the sync layer's sentinel errors onto HTTP statuses
func httpError(err error) error {
	var status int
	switch {
	case errors.Is(err, common.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrNotAuthor):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrProfileNotFound), errors.Is(err, backend.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrImageResolutionFailed):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrWriteFailed), errors.Is(err, common.ErrCommentFailed),
		errors.Is(err, common.ErrFetchFailed):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	return echo.NewHTTPError(status, err.Error())
}
