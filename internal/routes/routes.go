package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sejin/moim-api/internal/handlers"
	"github.com/sejin/moim-api/internal/middleware"
)

func Setup(app *fiber.App) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", handlers.Register)
	auth.Post("/login", handlers.Login)

	protected := api.Group("/", middleware.Protected())

	protected.Get("/me", handlers.GetMe)
	protected.Put("/me", handlers.UpdateProfile)

	activities := protected.Group("/activities")
	activities.Get("/", handlers.GetSquare)
	activities.Get("/ongoing", handlers.GetOngoing)
	activities.Get("/history", handlers.GetHistory)
	activities.Post("/", handlers.CreateActivity)
	activities.Get("/:id", handlers.GetActivity)
	activities.Get("/:id/participants", handlers.GetParticipants)

	// Membership ledger
	activities.Post("/:id/join", handlers.JoinActivity)
	activities.Post("/:id/quit", handlers.QuitActivity)

	// Lifecycle transitions
	activities.Post("/:id/recruitment", handlers.ToggleRecruitment)
	activities.Post("/:id/complete", handlers.CompleteActivity)
	activities.Post("/:id/cancel", handlers.CancelActivity)
	activities.Post("/:id/ack", handlers.AckCancelled)
	activities.Delete("/:id", handlers.DeleteActivity)
	activities.Post("/:id/restore", handlers.RestoreActivity)
	activities.Post("/:id/hide", handlers.HideActivity)

	// Notifications
	notifications := protected.Group("/notifications")
	notifications.Get("/", handlers.GetNotifications)
	notifications.Put("/:id/read", handlers.MarkNotificationRead)
	notifications.Post("/read-all", handlers.MarkAllRead)

	// Device token for push notifications
	protected.Post("/device-token", handlers.RegisterDeviceToken)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket for real-time activity updates
	app.Use("/ws", handlers.WebSocketUpgrade())
	app.Get("/ws/activities/:id", websocket.New(handlers.HandleWebSocket))
}
