package main

import (
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"github.com/sejin/moim-api/internal/config"
	"github.com/sejin/moim-api/internal/database"
	"github.com/sejin/moim-api/internal/routes"
	"github.com/sejin/moim-api/internal/services"
	"github.com/sejin/moim-api/pkg/logging"
)

func main() {
	godotenv.Load()
	logging.Setup()

	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "url", cfg.DatabaseURL)

	services.InitPush(cfg.FCMServiceAccount)

	app := fiber.New()
	app.Use(fiberlogger.New())
	routes.Setup(app)

	slog.Info("server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
