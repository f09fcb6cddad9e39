package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saeid-a/CalibrateBack/internal/config"
	"github.com/saeid-a/CalibrateBack/internal/database"
	"github.com/saeid-a/CalibrateBack/internal/identity"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/logger"
	"github.com/saeid-a/CalibrateBack/internal/middleware"
	"github.com/saeid-a/CalibrateBack/internal/repository"
	"github.com/saeid-a/CalibrateBack/internal/repository/mongostore"
	"github.com/saeid-a/CalibrateBack/internal/routes"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

const (
	connectTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// backend is an opened store with its change feed.
type backend struct {
	stores  routes.Stores
	runFeed func(ctx context.Context, hub *live.Hub) error
	close   func(ctx context.Context) error
}

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	store, err := openBackend(connectCtx, cfg, zlog)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			zlog.Warn("close store", zap.Error(err))
		}
	}()

	// 3. Live updates
	hub := live.NewHub(zlog.Named("hub"))
	go hub.Run(ctx)
	go func() {
		if err := store.runFeed(ctx, hub); err != nil {
			zlog.Error("change feed stopped", zap.Error(err))
		}
	}()

	if cfg.BootstrapOwnerEmail != "" {
		notifications := services.NewNotificationService(store.stores.Users, store.stores.Unread, zlog)
		users := services.NewUserService(store.stores.Users, notifications, zlog)
		if err := users.Bootstrap(ctx, cfg.BootstrapOwnerEmail); err != nil {
			return fmt.Errorf("bootstrap owner: %w", err)
		}
	}

	deps := routes.Dependencies{
		Stores: store.stores,
		Hub:    hub,
		Log:    zlog,
	}
	if cfg.Storage.Enabled() {
		storage, err := services.NewMinioExportStorage(ctx, services.MinioOptions{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			zlog.Warn("export archive disabled", zap.Error(err))
		} else {
			deps.Storage = storage
		}
	}
	if cfg.GoogleEnabled() {
		redirectURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/api/auth/google/callback"
		deps.Provider = identity.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, redirectURL)
	} else {
		zlog.Warn("google sign-in is not configured")
	}

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	// Middleware
	app.Use(middleware.RequestLogger(zlog.Named("http")))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"store":  cfg.StoreDriver,
		})
	})
	if err := routes.RegisterRoutes(app, cfg, deps); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	// 5. Start Server
	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func openBackend(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		feed := mongostore.NewChangeStream(db, zlog.Named("changes"))
		return &backend{
			stores: routes.Stores{
				Users:    mongostore.NewUserStore(db),
				Messages: mongostore.NewMessageStore(db),
				Unread:   mongostore.NewUnreadStore(db),
				FoodLogs: mongostore.NewFoodLogStore(db),
			},
			runFeed: func(ctx context.Context, hub *live.Hub) error { return feed.Run(ctx, hub) },
			close:   client.Disconnect,
		}, nil
	default:
		pool, err := database.ConnectPostgres(ctx, cfg.DBUrl)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		feed := repository.NewChangeFeed(pool, zlog.Named("changes"))
		return &backend{
			stores: routes.Stores{
				Users:    repository.NewUserRepository(pool),
				Messages: repository.NewMessageRepository(pool),
				Unread:   repository.NewUnreadRepository(pool),
				FoodLogs: repository.NewFoodLogRepository(pool),
			},
			runFeed: func(ctx context.Context, hub *live.Hub) error { return feed.Run(ctx, hub) },
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	}
}
