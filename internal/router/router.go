package router

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/handlers"
	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/membership"
	"github.com/anonto42/nano-midea/client/internal/middleware"
	"github.com/anonto42/nano-midea/client/internal/mutation"
	"github.com/anonto42/nano-midea/client/internal/notification"
	"github.com/anonto42/nano-midea/client/internal/profile"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// Dependencies are the process-wide components the routes are built on
type Dependencies struct {
	Store         backend.Store
	Resolver      *identity.Resolver
	Storage       images.Source
	Notifier      *notification.Notifier
	Shown         *notification.ShownSet
	SessionSecret string
	SessionTTL    time.Duration
	Live          handlers.LiveOptions
	Logger        logging.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	ctx := context.Background()
	log := deps.Logger

	e.Validator = handlers.NewValidator()

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	postRepo := repositories.NewStorePostRepository(deps.Store)
	userRepo := repositories.NewStoreUserRepository(deps.Store)
	notificationRepo := repositories.NewStoreNotificationRepository(deps.Store)
	subscriptionRepo := repositories.NewStoreSubscriptionRepository(deps.Store)

	// --- Initialize Services ---
	engine := mutation.NewEngine(postRepo, deps.Resolver, deps.Notifier, deps.Storage, log.With("component", "mutation"))
	editor := profile.NewEditor(userRepo, deps.Resolver, deps.Storage, log.With("component", "profile"))
	wizard := membership.NewService(subscriptionRepo, deps.Resolver, deps.Storage, log.With("component", "membership"))
	tiers := membership.NewLookup(subscriptionRepo)

	// --- Unprotected routes for the session ---
	api := e.Group("/api/v1")
	sessionHandler := handlers.NewSessionHandler(deps.Resolver, deps.SessionSecret, deps.SessionTTL)
	sessionHandler.RegisterSessionRoutes(api)
	log.Info(ctx, "Session routes configured.")

	// --- Protected routes (require a live session) ---
	protected := api.Group("")
	protected.Use(middleware.SessionAuthMiddleware(deps.SessionSecret, deps.Resolver.Cell()))
	sessionHandler.RegisterProtectedRoutes(protected)
	log.Info(ctx, "Session authentication middleware applied to /api/v1 group.")

	// User profile routes
	userHandler := handlers.NewUserHandler(deps.Resolver, editor, tiers, userRepo)
	userHandler.RegisterProfileRoutes(protected)
	log.Info(ctx, "User profile routes configured.")

	// Post routes
	postHandler := handlers.NewPostHandler(postRepo, engine)
	postHandler.RegisterPostRoutes(protected)
	log.Info(ctx, "Post routes configured.")

	// Subscription routes
	subscriptionHandler := handlers.NewSubscriptionHandler(wizard, tiers)
	subscriptionHandler.RegisterSubscriptionRoutes(protected)
	log.Info(ctx, "Subscription routes configured.")

	// Notification routes
	notificationHandler := handlers.NewNotificationHandler(deps.Store, notificationRepo, deps.Resolver)
	notificationHandler.RegisterNotificationRoutes(protected)
	log.Info(ctx, "Notification routes configured.")

	// Image routes
	imageHandler := handlers.NewImageHandler(deps.Storage, log.With("component", "images"))
	imageHandler.RegisterImageRoutes(protected)
	log.Info(ctx, "Image routes configured.")

	// Live view
	liveHandler := handlers.NewLiveHandler(deps.Store, postRepo, notificationRepo, engine,
		deps.Resolver.Cell(), deps.Shown, deps.Live, log.With("component", "live"))
	liveHandler.RegisterLiveRoutes(protected)
	log.Info(ctx, "Live view route configured.")

	log.Info(ctx, "All routes configured.")
}
