package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/live"
)

func HealthCheck(e echo.Context) error {
	return e.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "sync-client",
		"subscriptions": live.Active(),
	})
}
