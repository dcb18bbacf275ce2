package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/handlers"
	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/notification"
	"github.com/anonto42/nano-midea/client/internal/repositories"
	"github.com/anonto42/nano-midea/client/internal/router"
	"github.com/anonto42/nano-midea/client/pkg/config"
	"github.com/anonto42/nano-midea/client/pkg/firebase"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).With("env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when run returns

	// Initialize Firebase. Sign-in needs it even when nothing else does.
	var fb *firebase.App
	fb, err = firebase.InitFirebase(ctx, firebase.Options{
		CredentialsPath: cfg.FirebaseCredentialsPath,
		ProjectID:       cfg.FirebaseProjectID,
		StorageBucket:   cfg.FirebaseStorageBucket,
		Firestore:       cfg.Backend == "firestore",
		Storage:         cfg.ImageStorage == "firebase",
		Messaging:       cfg.PushEnabled,
	})
	if err != nil {
		if cfg.NeedsFirebase() {
			return fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		logger.Warn(ctx, "Firebase unavailable, sign-in disabled", "error", err)
		fb = nil
	} else {
		defer fb.Close()
	}

	store, err := openStore(cfg, db, fb)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}

	sessions, err := openSessions(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	storage, err := openStorage(ctx, cfg, fb)
	if err != nil {
		return fmt.Errorf("failed to open image storage: %w", err)
	}

	// Identity
	var verifier identity.TokenVerifier
	if fb != nil {
		verifier = fb.AuthClient
	}
	userRepo := repositories.NewStoreUserRepository(store)
	resolver := identity.NewResolver(identity.NewCell(), sessions, userRepo, verifier, logger.With("component", "identity"))
	defer resolver.Close()
	if err := resolver.Restore(ctx); err != nil {
		logger.Warn(ctx, "could not restore session", "error", err)
	}

	// Notification writer
	var pusher notification.Pusher
	if cfg.PushEnabled && fb != nil {
		pusher = notification.NewFCMPusher(fb.Messaging, userRepo, logger.With("component", "push"))
	}
	notifier := notification.NewNotifier(repositories.NewStoreNotificationRepository(store), pusher,
		logger.With("component", "notifier"))
	defer notifier.Close()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Setup global middleware
	config.SetupMiddleware(e, logger)

	// Setup routes and dependencies
	router.SetupRoutes(e, router.Dependencies{
		Store:         store,
		Resolver:      resolver,
		Storage:       storage,
		Notifier:      notifier,
		Shown:         notification.NewShownSet(),
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		Live: handlers.LiveOptions{
			PageSize:      cfg.FeedPageSize,
			AlertDuration: cfg.AlertDuration,
		},
		Logger: logger,
	})

	// Start server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "server listening", "port", cfg.Port, "backend", cfg.Backend, "images", cfg.ImageStorage)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config, db *config.DB, fb *firebase.App) (backend.Store, error) {
	switch cfg.Backend {
	case "firestore":
		if fb == nil || fb.Firestore == nil {
			return nil, errors.New("firestore backend needs Firebase")
		}
		return backend.NewFirestore(fb.Firestore), nil
	case "mongo":
		return backend.NewMongo(db.Mongo.Database(cfg.MongoDatabase)), nil
	case "memory":
		return backend.NewMemory(), nil
	default:
		return nil, errors.New("unknown BACKEND " + cfg.Backend)
	}
}

func openSessions(cfg *config.Config, db *config.DB) (identity.SessionStore, error) {
	switch cfg.SessionStore {
	case "postgres":
		return identity.NewGormSessionStore(db.Postgres, cfg.DeviceID)
	case "redis":
		return identity.NewRedisSessionStore(db.Redis, cfg.DeviceID), nil
	case "memory":
		return identity.NewMemorySessionStore(), nil
	default:
		return nil, errors.New("unknown SESSION_STORE " + cfg.SessionStore)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, fb *firebase.App) (images.Source, error) {
	switch cfg.ImageStorage {
	case "firebase":
		if fb == nil || fb.Bucket == nil {
			return nil, errors.New("firebase image storage needs Firebase")
		}
		return images.NewFirebaseStorage(fb.Bucket), nil
	case "s3":
		return images.NewS3Storage(ctx, images.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
	case "memory":
		return images.NewMemorySource(), nil
	default:
		return nil, errors.New("unknown IMAGE_STORAGE " + cfg.ImageStorage)
	}
}
