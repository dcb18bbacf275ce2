package config

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/anonto42/nano-midea/client/internal/logging"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, logger logging.Logger) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Error(ctx, "request failed", append(args, "error", v.Error.Error())...)
				return nil
			}
			logger.Info(ctx, "request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	logger.Info(context.Background(), "Global middleware configured.", slog.String("component", "echo"))
}
