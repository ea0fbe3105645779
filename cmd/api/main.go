package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	config "github.com/ysuzuki8/market_dm/configs"
	"github.com/ysuzuki8/market_dm/database"
	"github.com/ysuzuki8/market_dm/handlers"
	"github.com/ysuzuki8/market_dm/routes"
	"github.com/ysuzuki8/market_dm/services"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedSupportUser()

	store, err := newAttachmentStore()
	if err != nil {
		log.Fatalf("🔥 Failed to initialize attachment storage: %v", err)
	}
	handlers.Init(database.DB, store)

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Market DM",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Market DM API",
		})
	})

	routes.MessagingRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	if err := app.Listen(":8080"); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}

// newAttachmentStore picks Cloudinary when configured and falls back to
// local disk for development.
func newAttachmentStore() (services.AttachmentStore, error) {
	if config.Config("CLOUDINARY_URL") != "" {
		return services.NewCloudinaryStore()
	}

	dir := config.Config("ATTACHMENT_DIR")
	if dir == "" {
		dir = "storage/dm_attachments"
	}
	baseURL := config.Config("ATTACHMENT_BASE_URL")
	if baseURL == "" {
		baseURL = "/storage/dm_attachments"
	}
	return services.NewLocalStore(dir, baseURL)
}
