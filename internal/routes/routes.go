package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CalibrateBack/internal/config"
	"github.com/saeid-a/CalibrateBack/internal/handlers"
	"github.com/saeid-a/CalibrateBack/internal/identity"
	"github.com/saeid-a/CalibrateBack/internal/live"
	"github.com/saeid-a/CalibrateBack/internal/middleware"
	"github.com/saeid-a/CalibrateBack/internal/models"
	"github.com/saeid-a/CalibrateBack/internal/services"
	"go.uber.org/zap"
)

// Stores is the storage backend selected at startup.
type Stores struct {
	Users    services.UserStore
	Messages services.MessageStore
	Unread   services.UnreadStore
	FoodLogs services.FoodLogStore
}

type Dependencies struct {
	Stores   Stores
	Hub      *live.Hub
	Storage  services.ExportStorage
	Provider identity.Provider
	Log      *zap.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) error {
	stores := deps.Stores
	log := deps.Log

	notificationService := services.NewNotificationService(stores.Users, stores.Unread, log)
	userService := services.NewUserService(stores.Users, notificationService, log)
	chatService := services.NewChatService(stores.Users, stores.Messages, notificationService, deps.Hub)
	foodLogService := services.NewFoodLogService(stores.Users, stores.FoodLogs, deps.Hub, cfg.Location())
	exportService := services.NewExportService(stores.Users, stores.FoodLogs, deps.Storage)

	authHandler := handlers.NewAuthHandler(
		userService,
		deps.Provider,
		identity.NewStateCodec([]byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey)),
		handlers.AuthOptions{
			JWTSecret:    cfg.JWTSecret,
			FrontendURL:  cfg.FrontendURL,
			SecureCookie: !cfg.IsDevelopment(),
		},
		log,
	)
	userHandler := handlers.NewUserHandler(userService, log)
	chatHandler := handlers.NewChatHandler(chatService, log)
	foodLogHandler := handlers.NewFoodLogHandler(foodLogService, log)
	exportHandler := handlers.NewExportHandler(exportService, log)

	staffOnly := middleware.RequireRoles(models.RoleCoach, models.RoleOwner)
	ownerOnly := middleware.RequireRoles(models.RoleOwner)
	clientOnly := middleware.RequireRoles(models.RoleClient)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Get("/google", authHandler.GoogleLogin)
	auth.Get("/google/callback", authHandler.GoogleCallback)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)
	auth.Post("/signout", authHandler.SignOut)

	// Sockets authenticate with a query token, so they are mounted before
	// the header-based group.
	api.Use("/v1/ws", middleware.WebSocketAuth(cfg.JWTSecret))
	api.Get("/v1/ws/chat/:email", websocket.New(chatHandler.HandleWebSocket))
	api.Get("/v1/ws/logs/:email", websocket.New(foodLogHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	authProtected.Post("/users", ownerOnly, userHandler.Provision)

	clients := authProtected.Group("/clients")
	clients.Get("", staffOnly, userHandler.ListClients)
	clients.Post("/:email/promote", staffOnly, userHandler.Promote)
	clients.Post("/:email/demote", staffOnly, userHandler.Demote)
	clients.Put("/:email/coach", ownerOnly, userHandler.AssignCoach)
	clients.Get("/:email/logs", staffOnly, foodLogHandler.ListForClient)
	// Clients may export their own log; the service checks the target.
	clients.Get("/:email/logs/export", exportHandler.Download)
	clients.Post("/:email/logs/exports", exportHandler.Archive)

	me := authProtected.Group("/me")
	me.Post("/celebration/ack", clientOnly, userHandler.AckCelebration)
	me.Get("/unread", userHandler.Unread)

	conversations := authProtected.Group("/conversations")
	conversations.Get("/:email/messages", chatHandler.GetMessages)
	conversations.Post("/:email/messages", chatHandler.SendMessage)
	conversations.Delete("/:email/messages/:id", chatHandler.DeleteMessage)
	conversations.Post("/:email/read", chatHandler.MarkRead)

	logs := authProtected.Group("/logs")
	logs.Get("", foodLogHandler.ListMine)
	logs.Post("", clientOnly, foodLogHandler.Add)
	logs.Put("/:id", clientOnly, foodLogHandler.Update)
	logs.Delete("/:id", clientOnly, foodLogHandler.Delete)

	return registerDocsRoutes(app, cfg)
}
